package optimize

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/sstepanchuk/leptos-image/internal/platform/config"
	"github.com/sstepanchuk/leptos-image/internal/platform/errors"
	"github.com/sstepanchuk/leptos-image/internal/platform/logging"
	"github.com/sstepanchuk/leptos-image/internal/platform/observability"
)

// Generator produces the derivative for a descriptor. The production
// implementation is Pipeline; tests substitute fakes.
type Generator interface {
	Generate(ctx context.Context, d Descriptor, sourcePath, savePath string) error
}

// NewLimiter builds a shared generation limiter with the given permit
// count. Zero or negative means one permit per CPU. Several Optimizer
// instances may share one limiter so their combined concurrency stays
// bounded.
func NewLimiter(parallelism int) *semaphore.Weighted {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	return semaphore.NewWeighted(int64(parallelism))
}

// Optimizer serves derivative requests: resolve the cache path, return
// early when the file exists, otherwise generate it exactly once under
// the concurrency limit.
type Optimizer struct {
	root        string
	handlerPath string
	sem         *semaphore.Weighted
	flight      singleflight.Group
	generator   Generator
	logger      *logging.Logger
	bus         EventPublisher
}

// Options configures an Optimizer.
type Options struct {
	// Root is the serving root holding source assets; derivatives are
	// written under <Root>/cache/image.
	Root string
	// HandlerPath is the route lookup URLs are built against.
	HandlerPath string
	// Parallelism bounds concurrent generations when no Limiter is
	// passed.
	Parallelism int
	// Limiter optionally shares one permit pool across optimizers. When
	// set, Parallelism is ignored.
	Limiter *semaphore.Weighted
	// Generator defaults to the libvips pipeline with Limits applied.
	Generator Generator
	Limits    config.SourceLimits
	Logger    *logging.Logger
	// Bus receives TopicImageCreated events; nil disables publishing.
	Bus EventPublisher
}

func New(opts Options) (*Optimizer, error) {
	if opts.Root == "" {
		return nil, errors.New(errors.KindConfig, "new-optimizer", "root path required")
	}
	if opts.HandlerPath == "" {
		opts.HandlerPath = "/cache/image"
	}
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger
	}
	sem := opts.Limiter
	if sem == nil {
		sem = NewLimiter(opts.Parallelism)
	}
	generator := opts.Generator
	if generator == nil {
		generator = NewPipeline(PipelineOptions{
			Limits: opts.Limits,
			Logger: opts.Logger,
		})
	}
	return &Optimizer{
		root:        opts.Root,
		handlerPath: opts.HandlerPath,
		sem:         sem,
		generator:   generator,
		logger:      opts.Logger,
		bus:         opts.Bus,
	}, nil
}

// Root reports the serving root the optimizer writes under.
func (o *Optimizer) Root() string {
	return o.root
}

// FilePathFromRoot resolves the absolute cache location for d under the
// serving root.
func (o *Optimizer) FilePathFromRoot(d Descriptor) string {
	return FilePathWithRoot(o.root, d)
}

// URLPath builds the lookup URL for d against the configured handler
// mount.
func (o *Optimizer) URLPath(d Descriptor) string {
	return d.URLPath(o.handlerPath)
}

// CreateImage ensures the derivative for d exists. It reports true when
// this call generated the file and false when it already existed.
// Identical concurrent requests collapse onto a single generation and
// share its outcome. Cancelling ctx abandons the wait but never the
// generation itself, which runs to completion so the bounded permits
// cannot leak.
func (o *Optimizer) CreateImage(ctx context.Context, d Descriptor) (bool, error) {
	const op = "create-image"

	if ctx == nil {
		ctx = context.Background()
	}

	savePath := o.FilePathFromRoot(d)
	if fileExists(savePath) {
		return false, nil
	}

	ch := o.flight.DoChan(savePath, func() (interface{}, error) {
		return o.generateOnce(d, savePath)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	case <-ctx.Done():
		return false, errors.Wrap(errors.KindWorker, op, "abandoned while waiting for generation", ctx.Err())
	}
}

// generateOnce runs inside the singleflight and holds one limiter permit
// for the duration of the transform. Panics in the generator surface as
// worker errors instead of tearing the process down.
func (o *Optimizer) generateOnce(d Descriptor, savePath string) (created bool, err error) {
	const op = "generate"

	defer func() {
		if r := recover(); r != nil {
			created = false
			err = errors.New(errors.KindWorker, op, fmt.Sprintf("generation panicked: %v", r))
		}
	}()

	// Losing flight callers may have queued behind a finished
	// generation; re-check before paying for a permit.
	if fileExists(savePath) {
		return false, nil
	}

	// The permit wait is deliberately detached from caller contexts, so
	// an abandoned request cannot cancel a generation other callers are
	// waiting on.
	if err := o.sem.Acquire(context.Background(), 1); err != nil {
		return false, errors.Wrap(errors.KindWorker, op, "acquire generation permit", err)
	}
	defer o.sem.Release(1)

	jobID := uuid.NewString()
	start := time.Now()
	o.logger.DebugTag("OPTIMIZE", "creating %s derivative: job=%s src=%s",
		variantName(d.Option), jobID, d.Src)

	sourcePath := SourcePathWithRoot(o.root, d)
	if err := o.generator.Generate(context.Background(), d, sourcePath, savePath); err != nil {
		o.logger.ErrorTag("OPTIMIZE", "generation failed: job=%s src=%s err=%v", jobID, d.Src, err)
		return false, err
	}

	elapsed := time.Since(start)
	o.logger.InfoTag("OPTIMIZE", "derivative created: job=%s path=%s elapsed=%s", jobID, savePath, elapsed)
	observability.RecordMetric(context.Background(), "optimize.created", 1,
		map[string]string{"variant": variantName(d.Option)})

	if o.bus != nil {
		o.bus.Publish(TopicImageCreated, CreatedEvent{
			Descriptor: d,
			Path:       savePath,
			Elapsed:    elapsed,
		})
	}
	return true, nil
}

func variantName(opt Option) string {
	switch opt.(type) {
	case Resize:
		return "Resize"
	case Blur:
		return "Blur"
	default:
		return fmt.Sprintf("%T", opt)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
