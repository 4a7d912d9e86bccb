package ros

// MessageMeta is the bag record time gobag attaches to every message.
type MessageMeta struct {
	Secs  int `json:"secs"`
	Nsecs int `json:"nsecs"`
}

// Header is a std_msgs/Header.
type Header struct {
	Seq   int `json:"seq"`
	Stamp struct {
		Secs  int `json:"secs"`
		Nsecs int `json:"nsecs"`
	} `json:"stamp"`
	FrameID string `json:"frame_id"`
}

// CameraInfoMessage is a sensor_msgs/CameraInfo record as decoded from a bag.
type CameraInfoMessage struct {
	Meta MessageMeta `json:"meta"`
	Data struct {
		Header          Header    `json:"header"`
		Height          int       `json:"height"`
		Width           int       `json:"width"`
		DistortionModel string    `json:"distortion_model"`
		D               []float64 `json:"D"`
		K               []float64 `json:"K"`
		R               []float64 `json:"R"`
		P               []float64 `json:"P"`
	} `json:"data"`
}
