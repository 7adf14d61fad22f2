package rate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/fxrfq/shared"
	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

const (
	// sampleInterval is the cadence at which the current rate is sampled
	// into candles.
	sampleInterval = time.Minute * 5
	// maxCandles is the maximum number of candles retained per timeframe.
	maxCandles = 200
)

// RecorderConfig represents the candle recorder configuration.
type RecorderConfig struct {
	// FromCurrency is the source currency of the recorded pair.
	FromCurrency string
	// ToCurrency is the destination currency of the recorded pair.
	ToCurrency string
	// Rate fetches the current spot rate for a currency pair.
	Rate func(ctx context.Context, from string, to string) (float64, error)
	// Now returns the current time.
	Now func() time.Time
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *RecorderConfig) Validate() error {
	var errs error

	if cfg.FromCurrency == "" {
		errs = errors.Join(errs, fmt.Errorf("source currency cannot be an empty string"))
	}
	if cfg.ToCurrency == "" {
		errs = errors.Join(errs, fmt.Errorf("destination currency cannot be an empty string"))
	}
	if cfg.Rate == nil {
		errs = errors.Join(errs, fmt.Errorf("rate function cannot be nil"))
	}
	if cfg.Now == nil {
		errs = errors.Join(errs, fmt.Errorf("now function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Recorder aggregates periodic rate samples into fixed-width OHLC candles,
// one independent series per supported timeframe. Candles are built purely
// from point samples, not true intratick extrema, which is an accepted
// approximation given the sampling cadence.
type Recorder struct {
	cfg          *RecorderConfig
	series       map[shared.Timeframe][]shared.Candle
	seriesMtx    sync.RWMutex
	jobScheduler gocron.Scheduler
}

// NewRecorder initializes a new candle recorder.
func NewRecorder(cfg *RecorderConfig) (*Recorder, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating recorder config: %w", err)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating job scheduler: %w", err)
	}

	series := make(map[shared.Timeframe][]shared.Candle, len(shared.Timeframes))
	for _, timeframe := range shared.Timeframes {
		series[timeframe] = make([]shared.Candle, 0, maxCandles)
	}

	return &Recorder{
		cfg:          cfg,
		series:       series,
		jobScheduler: scheduler,
	}, nil
}

// Sample applies a rate sample at the provided time to every timeframe
// series. A sample either extends the current bucket's candle or seeds a
// new one, evicting the oldest candle once the series is at capacity.
func (r *Recorder) Sample(now time.Time, rate float64) {
	unix := now.Unix()

	r.seriesMtx.Lock()
	defer r.seriesMtx.Unlock()

	for _, timeframe := range shared.Timeframes {
		bucketStart := timeframe.BucketStart(unix)
		candles := r.series[timeframe]

		if len(candles) == 0 || candles[len(candles)-1].Time != bucketStart {
			candle := shared.Candle{
				Time:  bucketStart,
				Open:  rate,
				High:  rate,
				Low:   rate,
				Close: rate,
			}

			if len(candles) == maxCandles {
				candles = candles[1:]
			}
			r.series[timeframe] = append(candles, candle)
			continue
		}

		last := &candles[len(candles)-1]
		if rate > last.High {
			last.High = rate
		}
		if rate < last.Low {
			last.Low = rate
		}
		last.Close = rate
	}
}

// Candles returns the most recent candles for the provided timeframe,
// capped at the provided limit when positive.
func (r *Recorder) Candles(timeframe shared.Timeframe, limit int) []shared.Candle {
	r.seriesMtx.RLock()
	defer r.seriesMtx.RUnlock()

	candles := r.series[timeframe]
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	snapshot := make([]shared.Candle, len(candles))
	copy(snapshot, candles)

	return snapshot
}

// sampleTick fetches the current rate and applies it as a sample. Fetch
// failures are logged and skipped until the next tick.
func (r *Recorder) sampleTick() {
	rate, err := r.cfg.Rate(context.Background(), r.cfg.FromCurrency, r.cfg.ToCurrency)
	if err != nil {
		r.cfg.Logger.Error().Msgf("sampling %s/%s rate: %v", r.cfg.FromCurrency, r.cfg.ToCurrency, err)
		return
	}

	r.Sample(r.cfg.Now(), rate)
}

// Run manages the lifecycle processes of the candle recorder.
func (r *Recorder) Run(ctx context.Context) {
	_, err := r.jobScheduler.NewJob(gocron.DurationJob(sampleInterval),
		gocron.NewTask(r.sampleTick), gocron.WithStartAt(gocron.WithStartImmediately()))
	if err != nil {
		r.cfg.Logger.Error().Msgf("creating candle sampling job: %v", err)
		return
	}

	r.jobScheduler.Start()
	<-ctx.Done()

	err = r.jobScheduler.Shutdown()
	if err != nil {
		r.cfg.Logger.Error().Msgf("shutting down candle sampling scheduler: %v", err)
	}
}
