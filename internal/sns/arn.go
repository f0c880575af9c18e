package sns

import (
	"fmt"
	"strings"
)

// TopicARN is a parsed arn:partition:sns:region:account:name identifier.
type TopicARN struct {
	Partition string
	Region    string
	AccountID string
	Name      string
}

func ParseTopicARN(s string) (TopicARN, error) {
	parts := strings.SplitN(s, ":", 6)
	if len(parts) != 6 || parts[0] != "arn" || parts[2] != "sns" {
		return TopicARN{}, fmt.Errorf("%w: %q", ErrInvalidTopicARN, s)
	}
	arn := TopicARN{
		Partition: parts[1],
		Region:    parts[3],
		AccountID: parts[4],
		Name:      parts[5],
	}
	if arn.Partition == "" || arn.Region == "" || arn.Name == "" {
		return TopicARN{}, fmt.Errorf("%w: %q", ErrInvalidTopicARN, s)
	}
	return arn, nil
}
