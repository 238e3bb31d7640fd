package tracing

import (
	"io"

	"github.com/opentracing/opentracing-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-client-go/log/zap"

	"github.com/unifiedinbox/mailsync/internal/logger"
)

type JaegerConfig struct {
	Endpoint     string  `env:"JAEGER_ENDPOINT"`
	ServiceName  string  `env:"JAEGER_SERVICE_NAME" envDefault:"mailsync"`
	AgentHost    string  `env:"JAEGER_AGENT_HOST" envDefault:"localhost"`
	AgentPort    string  `env:"JAEGER_AGENT_PORT" envDefault:"6831"`
	Enabled      bool    `env:"JAEGER_ENABLED" envDefault:"false"`
	LogSpans     bool    `env:"JAEGER_REPORTER_LOG_SPANS" envDefault:"false"`
	SamplerType  string  `env:"JAEGER_SAMPLER_TYPE" envDefault:"const"`
	SamplerParam float64 `env:"JAEGER_SAMPLER_PARAM" envDefault:"1"`
}

// NewJaegerTracer builds the tracer from environment config. A disabled
// config still returns a working no-op tracer, callers never branch on it.
func NewJaegerTracer(cfg *JaegerConfig, log logger.Logger) (opentracing.Tracer, io.Closer, error) {
	reporter := &jaegercfg.ReporterConfig{LogSpans: cfg.LogSpans}
	if cfg.Endpoint != "" {
		reporter.CollectorEndpoint = cfg.Endpoint
	} else {
		reporter.LocalAgentHostPort = cfg.AgentHost + ":" + cfg.AgentPort
	}

	tracerCfg := &jaegercfg.Configuration{
		ServiceName: cfg.ServiceName,
		Disabled:    !cfg.Enabled,
		Sampler: &jaegercfg.SamplerConfig{
			Type:  cfg.SamplerType,
			Param: cfg.SamplerParam,
		},
		Reporter: reporter,
	}

	return tracerCfg.NewTracer(jaegercfg.Logger(zap.NewLogger(log.Logger())))
}
