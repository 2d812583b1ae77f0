package transport

import (
	"bytes"

	"github.com/IBM/sarama"
)

// Message header keys
const (
	HeaderContentType = "content-type"
	HeaderCodec       = "arrowbus-codec"
	HeaderRows        = "arrowbus-rows"
	HeaderContract    = "arrowbus-contract"
)

// ProducerHeaders adapts outgoing record headers to a propagation.TextMapCarrier
type ProducerHeaders []sarama.RecordHeader

// Get returns the first value for key
func (h *ProducerHeaders) Get(key string) string {
	for _, rh := range *h {
		if string(rh.Key) == key {
			return string(rh.Value)
		}
	}
	return ""
}

// Set replaces the value for key, appending it if absent
func (h *ProducerHeaders) Set(key, value string) {
	for i, rh := range *h {
		if string(rh.Key) == key {
			(*h)[i].Value = []byte(value)
			return
		}
	}
	*h = append(*h, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

// Keys lists header keys in order
func (h *ProducerHeaders) Keys() []string {
	keys := make([]string, 0, len(*h))
	for _, rh := range *h {
		keys = append(keys, string(rh.Key))
	}
	return keys
}

// ConsumerHeaders adapts received record headers to a propagation.TextMapCarrier
type ConsumerHeaders []*sarama.RecordHeader

// Get returns the first value for key
func (h ConsumerHeaders) Get(key string) string {
	for _, rh := range h {
		if rh != nil && bytes.Equal(rh.Key, []byte(key)) {
			return string(rh.Value)
		}
	}
	return ""
}

// Set is a no-op; received headers are read-only
func (h ConsumerHeaders) Set(string, string) {}

// Keys lists header keys in order
func (h ConsumerHeaders) Keys() []string {
	keys := make([]string, 0, len(h))
	for _, rh := range h {
		if rh != nil {
			keys = append(keys, string(rh.Key))
		}
	}
	return keys
}
