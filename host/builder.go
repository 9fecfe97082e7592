package host

import (
	"context"
	"fmt"

	"github.com/streamingfast/subgraph-runtime/chain"
	"github.com/streamingfast/subgraph-runtime/manifest"
	"github.com/streamingfast/subgraph-runtime/mapping"
	"github.com/streamingfast/subgraph-runtime/metrics"
	"github.com/streamingfast/subgraph-runtime/wasm"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Builder creates runtime hosts sharing one chain adapter.
type Builder struct {
	logger    *zap.Logger
	adapter   chain.Adapter
	metrics   *metrics.Metrics
	factories map[string]mapping.Factory
	options   []Option
}

type BuilderOption func(b *Builder)

func WithMetrics(m *metrics.Metrics) BuilderOption {
	return func(b *Builder) {
		b.metrics = m
	}
}

// WithModuleFactory sets how programs written in language are loaded.
func WithModuleFactory(language string, factory mapping.Factory) BuilderOption {
	return func(b *Builder) {
		b.factories[language] = factory
	}
}

// WithDefaultOptions applies opts to every host, before per build options.
func WithDefaultOptions(opts ...Option) BuilderOption {
	return func(b *Builder) {
		b.options = append(b.options, opts...)
	}
}

func NewBuilder(adapter chain.Adapter, logger *zap.Logger, opts ...BuilderOption) *Builder {
	wasmFactory := wasm.NewFactory()

	b := &Builder{
		logger:  logger,
		adapter: adapter,
		factories: map[string]mapping.Factory{
			manifest.LanguageAssemblyScript: wasmFactory,
			manifest.LanguageRustV1:         wasmFactory,
			manifest.LanguageNative:         mapping.DefaultRegistry,
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = metrics.NewNoop()
	}
	return b
}

// Build loads the mapping program of every data source of manif, registers
// one subscription per event handler and starts dispatching. Only
// configuration problems fail the build; subscriptions the adapter rejects
// are reported by FailedSubscriptions.
func (b *Builder) Build(ctx context.Context, manif *manifest.Manifest, opts ...Option) (*RuntimeHost, error) {
	if manif == nil {
		return nil, fmt.Errorf("no manifest given")
	}

	conf := newConfig(append(append([]Option{}, b.options...), opts...))

	dataSources, err := selectDataSources(manif, conf.dataSources)
	if err != nil {
		return nil, err
	}

	logger := b.logger.With(zap.String("subgraph_id", manif.ID))
	h := newRuntimeHost(manif, b.adapter, logger, b.metrics, conf)

	for _, ds := range dataSources {
		rt, err := b.newRuntime(ctx, h, ds)
		if err != nil {
			h.recvCancel()
			h.emitCancel()
			h.closeModules()
			return nil, err
		}
		h.runtimes = append(h.runtimes, rt)
	}

	for _, rt := range h.runtimes {
		h.subscribe(rt)
	}

	logger.Info("runtime host started",
		zap.Int("data_source_count", len(h.runtimes)),
		zap.Int("subscription_count", len(h.subscriptions)),
		zap.Int("failed_subscription_count", len(h.failed)),
	)
	return h, nil
}

func selectDataSources(manif *manifest.Manifest, names []string) ([]*manifest.DataSource, error) {
	if len(names) == 0 {
		if len(manif.DataSources) == 0 {
			return nil, ErrNoDataSources
		}
		return manif.DataSources, nil
	}

	var out []*manifest.DataSource
	for _, name := range names {
		ds := manif.DataSource(name)
		if ds == nil {
			return nil, &ConfigError{DataSource: name, Err: fmt.Errorf("not declared in manifest")}
		}
		out = append(out, ds)
	}
	return out, nil
}

func (b *Builder) newRuntime(ctx context.Context, h *RuntimeHost, ds *manifest.DataSource) (*runtime, error) {
	configErr := func(err error) error { return &ConfigError{DataSource: ds.Name, Err: err} }

	address, err := chain.ParseAddress(ds.Source.Address)
	if err != nil {
		return nil, configErr(err)
	}

	factory, found := b.factories[ds.Mapping.Language]
	if !found {
		return nil, configErr(fmt.Errorf("unsupported mapping language %q", ds.Mapping.Language))
	}

	var abiJSON []byte
	if abiFile := ds.ABIFile(); abiFile != "" {
		abiJSON, err = manifest.ReadFile(ctx, h.manifest.ResolvePath(abiFile))
		if err != nil {
			return nil, configErr(fmt.Errorf("loading abi %q: %w", ds.Source.ABI, err))
		}
	}

	rt := &runtime{
		dataSource:    ds,
		address:       address,
		maxOperations: h.config.maxOperations,
	}

	var decodeErrs error
	for _, eh := range ds.Mapping.EventHandlers {
		decoder, err := mapping.NewDecoder(eh.Event, abiJSON)
		if err != nil {
			decodeErrs = multierr.Append(decodeErrs, fmt.Errorf("handler %q: %w", eh.Handler, err))
			continue
		}
		rt.bindings = append(rt.bindings, &binding{handler: eh.Handler, event: eh.Event, decoder: decoder})
	}
	if decodeErrs != nil {
		return nil, configErr(decodeErrs)
	}

	rt.module, err = factory.NewModule(ctx, &mapping.Config{
		SubgraphID:      h.manifest.ID,
		DataSource:      ds,
		ProgramLocation: h.manifest.ResolvePath(ds.Mapping.File),
		Sink:            rt,
		Logger:          h.logger.With(zap.String("data_source", ds.Name)),
	})
	if err != nil {
		return nil, configErr(err)
	}

	return rt, nil
}
