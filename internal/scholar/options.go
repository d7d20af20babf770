package scholar

import (
	"fmt"

	"github.com/spf13/pflag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	cacheopts "github.com/kart-io/sentinel-scholar/pkg/options/cache"
	httpopts "github.com/kart-io/sentinel-scholar/pkg/options/http"
	llmopts "github.com/kart-io/sentinel-scholar/pkg/options/llm"
	logopts "github.com/kart-io/sentinel-scholar/pkg/options/logger"
	scholaropts "github.com/kart-io/sentinel-scholar/pkg/options/scholar"
	tracingopts "github.com/kart-io/sentinel-scholar/pkg/options/tracing"
)

// Options contains all sentinel-scholar options.
type Options struct {
	// HTTP contains HTTP server configuration.
	HTTP *httpopts.Options `json:"http" mapstructure:"http"`

	// Log contains logger configuration.
	Log *logopts.Options `json:"log" mapstructure:"log"`

	// LLM contains the primary, secondary and embedding providers.
	LLM *llmopts.Options `json:"llm" mapstructure:"llm"`

	// Cache contains embedding cache configuration.
	Cache *cacheopts.Options `json:"cache" mapstructure:"cache"`

	// Scholar contains engine configuration.
	Scholar *scholaropts.Options `json:"scholar" mapstructure:"scholar"`

	// Tracing contains OpenTelemetry tracing configuration.
	Tracing *tracingopts.Options `json:"tracing" mapstructure:"tracing"`
}

// NewOptions creates Options with default values.
func NewOptions() *Options {
	return &Options{
		HTTP:    httpopts.NewOptions(),
		Log:     logopts.NewOptions(),
		LLM:     llmopts.NewOptions(),
		Cache:   cacheopts.NewOptions(),
		Scholar: scholaropts.NewOptions(),
		Tracing: tracingopts.NewOptions(),
	}
}

// AddFlags adds flags of every option group.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.HTTP.AddFlags(fs)
	o.Log.AddFlags(fs)
	o.LLM.AddFlags(fs)
	o.Cache.AddFlags(fs)
	o.Scholar.AddFlags(fs)
	o.Tracing.AddFlags(fs)
}

// Complete completes all the required options.
func (o *Options) Complete() error {
	if err := o.HTTP.Complete(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if err := o.Log.Complete(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := o.LLM.Complete(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := o.Cache.Complete(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := o.Scholar.Complete(); err != nil {
		return fmt.Errorf("scholar: %w", err)
	}
	if err := o.Tracing.Complete(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return nil
}

// Validate checks whether the options are valid.
func (o *Options) Validate() error {
	errs := []error{}

	errs = append(errs, o.HTTP.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	errs = append(errs, o.LLM.Validate()...)
	errs = append(errs, o.Cache.Validate()...)
	errs = append(errs, o.Scholar.Validate()...)
	errs = append(errs, o.Tracing.Validate()...)

	return utilerrors.NewAggregate(errs)
}
