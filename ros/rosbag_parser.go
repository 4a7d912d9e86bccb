// Package ros reads recorded ROS bags, which is how camera calibration is obtained offline.
package ros

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/edaniels/gobag/rosbag"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/schizzz8/lucrezio-semantic-perception/rimage/transform"
)

// DefaultCameraInfoTopic is the depth camera's calibration topic.
const DefaultCameraInfoTopic = "/camera/depth/camera_info"

// ReadBag reads the contents of a rosbag into a gobag data structure.
func ReadBag(filename string) (*rosbag.RosBag, error) {
	//nolint:gosec
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open input file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	rb := rosbag.NewRosBag()
	if err := rb.Read(f); err != nil {
		return nil, errors.Wrapf(err, "unable to create ros bag, error")
	}
	return rb, nil
}

// topicKey is the key gobag files a topic's messages under.
func topicKey(topic string) string {
	return strings.ReplaceAll(strings.TrimPrefix(strings.ToLower(topic), "/"), "/", "_")
}

// AllMessagesForTopic returns all messages for a specific topic in the ros bag.
func AllMessagesForTopic(rb *rosbag.RosBag, topic string) ([]map[string]interface{}, error) {
	if err := rb.ParseTopicsToJSON(
		"",
		func(int64) bool { return true },
		func(t string) bool { return t == topic },
		false,
	); err != nil {
		return nil, errors.Wrapf(err, "error while parsing bag to JSON")
	}

	msgs := rb.TopicsAsJSON[topic]
	if msgs == nil {
		msgs = rb.TopicsAsJSON[topicKey(topic)]
	}
	if msgs == nil {
		return nil, errors.Errorf("no messages for topic %s", topic)
	}

	all := []map[string]interface{}{}
	for {
		data, err := msgs.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		message := map[string]interface{}{}
		if err := json.Unmarshal(data, &message); err != nil {
			return nil, err
		}
		all = append(all, message)
	}
	return all, nil
}

// DecodeCameraInfo converts a decoded camera_info message into pinhole intrinsics.
func DecodeCameraInfo(raw map[string]interface{}) (*transform.PinholeCameraIntrinsics, *CameraInfoMessage, error) {
	var msg CameraInfoMessage
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &msg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, nil, errors.Wrap(err, "malformed camera_info message")
	}
	params, err := transform.NewPinholeCameraIntrinsicsFromMatrix(msg.Data.K, msg.Data.Width, msg.Data.Height)
	if err != nil {
		return nil, nil, err
	}
	return params, &msg, nil
}

// CameraInfoFromBag returns the intrinsics of the first message on topic. Like a live camera_info
// subscription, later messages are ignored.
func CameraInfoFromBag(rb *rosbag.RosBag, topic string) (*transform.PinholeCameraIntrinsics, error) {
	if topic == "" {
		topic = DefaultCameraInfoTopic
	}
	msgs, err := AllMessagesForTopic(rb, topic)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, errors.Errorf("no messages for topic %s", topic)
	}
	params, _, err := DecodeCameraInfo(msgs[0])
	return params, err
}
