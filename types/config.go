package types

import (
	"time"
)

type RequestConfig struct {
	RequestQueueSize int
	RequestTimeout   time.Duration
	ConnectTimeout   time.Duration
	ClearInterval    time.Duration
	// PendingTTL bounds how long a deep-link correlation id survives in storage.
	PendingTTL time.Duration
}

func DefaultRequestConfig() *RequestConfig {
	return &RequestConfig{
		RequestQueueSize: 30,
		RequestTimeout:   time.Minute * 5,
		ConnectTimeout:   time.Minute * 5,
		ClearInterval:    time.Second * 30,
		PendingTTL:       time.Hour * 24,
	}
}
