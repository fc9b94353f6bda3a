package snapkeeper

import (
	"sort"

	"github.com/aws/aws-sdk-go/service/ec2"
)

func containsString(strSlice []string, searchStr string) bool {
	for _, value := range strSlice {
		if value == searchStr {
			return true
		}
	}
	return false
}

func dedupeString(strSlice []string) []string {
	var returnSlice []string
	for _, value := range strSlice {
		if !containsString(returnSlice, value) {
			returnSlice = append(returnSlice, value)
		}
	}
	return returnSlice
}

// tagsToMap converts an EC2 tag slice into a plain map for the selection
// functions. Duplicate keys shouldn't occur (AWS enforces uniqueness) but
// if they did the last one wins.
func tagsToMap(tags []*ec2.Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, tag := range tags {
		if tag.Key != nil && tag.Value != nil {
			m[*tag.Key] = *tag.Value
		}
	}
	return m
}

// mapToTags converts a tag map into the EC2 tag slice format, sorted by
// key so the request is the same on every run.
func mapToTags(m map[string]string) (tags []*ec2.Tag) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		key := k
		value := m[k]
		tags = append(tags, &ec2.Tag{Key: &key, Value: &value})
	}
	return tags
}
