package main

import "time"

type Config struct {
	BufferSize                int           `env:"BUFFER_SIZE,required=true"`
	ConnectionBufferSize      int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	ModerationCharReplacement rune          `env:"MODERATION_CHARACTER_REPLACEMENT,required=true"`
	SinkTimeout               time.Duration `env:"SINK_TIMEOUT,required=true"`
	RestartInterval           time.Duration `env:"RESTART_INTERVAL,required=true"`
	MetricInterval            time.Duration `env:"METRIC_INTERVAL,required=true"`
	BadgerFilepath            string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath             string        `env:"BLUGE_FILEPATH,required=true"`
	UploadDir                 string        `env:"UPLOAD_DIR,default=./uploads"`
	UploadBaseURL             string        `env:"UPLOAD_BASE_URL,default=/files"`
	LogLevel                  string        `env:"LOG_LEVEL,required=true"`
	Host                      string        `env:"HOST,default=localhost"`
	Port                      int           `env:"PORT,default=8080"`
}
