package sim

import "errors"

// ErrMissingEngineCore indicates NewEngine was invoked without a core.
var ErrMissingEngineCore = errors.New("sim: engine core is nil")

// EngineOption configures NewEngine behaviour. Options are applied in order;
// later options override earlier ones.
type EngineOption interface {
	apply(*engineConfig)
}

type engineOptionFunc func(*engineConfig)

func (f engineOptionFunc) apply(cfg *engineConfig) {
	if f != nil {
		f(cfg)
	}
}

type engineConfig struct {
	loopConfig LoopConfig
	loopHooks  LoopHooks
}

// WithLoopConfig overrides the default command queue and tick loop sizing used
// by the engine.
func WithLoopConfig(config LoopConfig) EngineOption {
	return engineOptionFunc(func(cfg *engineConfig) {
		cfg.loopConfig = config
	})
}

// WithLoopHooks supplies custom loop callbacks.
func WithLoopHooks(hooks LoopHooks) EngineOption {
	return engineOptionFunc(func(cfg *engineConfig) {
		cfg.loopHooks = hooks
	})
}

// NewEngine wraps core in a Loop configured by opts.
func NewEngine(core EngineCore, opts ...EngineOption) (*Loop, error) {
	if core == nil {
		return nil, ErrMissingEngineCore
	}
	cfg := engineConfig{loopConfig: DefaultLoopConfig()}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&cfg)
		}
	}
	return NewLoop(core, cfg.loopConfig, cfg.loopHooks), nil
}
