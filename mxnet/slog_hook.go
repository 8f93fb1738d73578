package mxnet

import (
	"log/slog"
)

// SlogHook is a Hook that logs predict events via Go's structured logging
// (log/slog). It logs at Info level on success and Error level on failure.
//
// Example:
//
//	pool, _ := mxnet.NewPredictorPool(rt, model, descs, 4, &mxnet.PoolConfig{
//	    Hooks: []mxnet.Hook{
//	        mxnet.NewSlogHook(slog.Default()),
//	    },
//	})
type SlogHook struct {
	logger *slog.Logger
}

// NewSlogHook creates a Hook that logs predict events to the given
// slog.Logger. If logger is nil, slog.Default() is used.
func NewSlogHook(logger *slog.Logger) *SlogHook {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogHook{logger: logger}
}

func (h *SlogHook) BeforePredict(_ *PredictInfo) {}

func (h *SlogHook) AfterPredict(info *PredictInfo) {
	if info.Error != nil {
		h.logger.Error("predict failed",
			slog.Duration("duration", info.Duration),
			slog.Int("inputs", info.Inputs),
			slog.String("error", info.Error.Error()),
		)
	} else {
		h.logger.Info("predict completed",
			slog.Duration("duration", info.Duration),
			slog.Int("inputs", info.Inputs),
			slog.Int("outputs", info.Outputs),
		)
	}
}
