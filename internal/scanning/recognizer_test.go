package scanning

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fakeBackend is a Backend that returns canned text
type fakeBackend struct {
	name    string
	text    string
	err     error
	closed  atomic.Bool
	calls   atomic.Int32
	gotMime atomic.Value
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Recognize(ctx context.Context, imageData []byte, contentType string) (string, error) {
	f.calls.Add(1)
	f.gotMime.Store(contentType)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *fakeBackend) Close() error {
	f.closed.Store(true)
	return nil
}

// countingStrategy records how many times Init ran
type countingStrategy struct {
	name    string
	backend Backend
	err     error
	delay   time.Duration
	inits   atomic.Int32
}

func (c *countingStrategy) Strategy() Strategy {
	return Strategy{
		Name: c.name,
		Init: func(ctx context.Context) (Backend, error) {
			c.inits.Add(1)
			if c.delay > 0 {
				time.Sleep(c.delay)
			}
			if c.err != nil {
				return nil, c.err
			}
			return c.backend, nil
		},
	}
}

func testPNG() []byte {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Recognizer", func() {
	var (
		ctx         context.Context
		img         Image
		accelerated *countingStrategy
		baseline    *countingStrategy
		recognizer  *Recognizer
	)

	BeforeEach(func() {
		ctx = context.Background()
		img = Image{Data: testPNG(), ContentType: "image/png"}
		accelerated = &countingStrategy{
			name:    "accelerated",
			backend: &fakeBackend{name: "accelerated", text: "saldo actual $45.000"},
		}
		baseline = &countingStrategy{
			name:    "baseline",
			backend: &fakeBackend{name: "baseline", text: "limite $150.000"},
		}
	})

	JustBeforeEach(func() {
		recognizer = NewRecognizer(accelerated.Strategy(), baseline.Strategy())
	})

	When("the preferred backend initializes", func() {
		It("uses it", func() {
			text, err := recognizer.Recognize(ctx, img, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("saldo actual $45.000"))
			Expect(recognizer.Backend()).To(Equal("accelerated"))
		})

		It("does not try the baseline backend", func() {
			_, err := recognizer.Recognize(ctx, img, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(baseline.inits.Load()).To(BeZero())
		})

		It("initializes only once across calls", func() {
			for i := 0; i < 3; i++ {
				_, err := recognizer.Recognize(ctx, img, nil)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(accelerated.inits.Load()).To(Equal(int32(1)))
		})

		It("hands the backend PNG data", func() {
			_, err := recognizer.Recognize(ctx, img, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(accelerated.backend.(*fakeBackend).gotMime.Load()).To(Equal("image/png"))
		})

		It("reports stages in order", func() {
			var stages []Stage
			_, err := recognizer.Recognize(ctx, img, func(s Stage) { stages = append(stages, s) })
			Expect(err).NotTo(HaveOccurred())
			Expect(stages).To(Equal([]Stage{StageInitializing, StagePreparing, StageRecognizing}))
		})
	})

	When("the preferred backend fails to initialize", func() {
		BeforeEach(func() {
			accelerated.err = errors.New("no gpu")
		})

		It("falls back to the baseline backend without error", func() {
			text, err := recognizer.Recognize(ctx, img, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("limite $150.000"))
			Expect(recognizer.Backend()).To(Equal("baseline"))
		})

		It("caches the fallback", func() {
			_, err := recognizer.Recognize(ctx, img, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = recognizer.Recognize(ctx, img, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(accelerated.inits.Load()).To(Equal(int32(1)))
			Expect(baseline.inits.Load()).To(Equal(int32(1)))
		})
	})

	When("every backend fails to initialize", func() {
		BeforeEach(func() {
			accelerated.err = errors.New("no gpu")
			baseline.err = errors.New("no model files")
		})

		It("returns ErrRecognizerUnavailable", func() {
			_, err := recognizer.Recognize(ctx, img, nil)
			Expect(err).To(MatchError(ErrRecognizerUnavailable))
			Expect(errors.Is(err, ErrRecognitionFailed)).To(BeFalse())
		})

		It("keeps every attempt's cause", func() {
			_, err := recognizer.Recognize(ctx, img, nil)
			var unavailable *UnavailableError
			Expect(errors.As(err, &unavailable)).To(BeTrue())
			Expect(unavailable.Attempts).To(HaveLen(2))
			Expect(err.Error()).To(ContainSubstring("no gpu"))
			Expect(err.Error()).To(ContainSubstring("no model files"))
		})

		It("stays uninitialized so a later call retries", func() {
			_, err := recognizer.Recognize(ctx, img, nil)
			Expect(err).To(HaveOccurred())
			Expect(recognizer.Backend()).To(BeEmpty())

			baseline.err = nil
			text, err := recognizer.Recognize(ctx, img, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("limite $150.000"))
			Expect(accelerated.inits.Load()).To(Equal(int32(2)))
			Expect(baseline.inits.Load()).To(Equal(int32(2)))
		})

		It("reports only the initializing stage", func() {
			var stages []Stage
			_, _ = recognizer.Recognize(ctx, img, func(s Stage) { stages = append(stages, s) })
			Expect(stages).To(Equal([]Stage{StageInitializing}))
		})
	})

	When("no strategies are configured", func() {
		It("returns ErrRecognizerUnavailable", func() {
			_, err := NewRecognizer().Recognize(ctx, img, nil)
			Expect(err).To(MatchError(ErrRecognizerUnavailable))
			Expect(err.Error()).To(ContainSubstring("no backends configured"))
		})
	})

	When("the backend fails on the image", func() {
		BeforeEach(func() {
			accelerated.backend = &fakeBackend{name: "accelerated", err: errors.New("model crashed")}
		})

		It("returns ErrRecognitionFailed naming the backend", func() {
			_, err := recognizer.Recognize(ctx, img, nil)
			Expect(err).To(MatchError(ErrRecognitionFailed))
			Expect(errors.Is(err, ErrRecognizerUnavailable)).To(BeFalse())

			var recErr *RecognitionError
			Expect(errors.As(err, &recErr)).To(BeTrue())
			Expect(recErr.Backend).To(Equal("accelerated"))
		})

		It("keeps the backend cached", func() {
			_, _ = recognizer.Recognize(ctx, img, nil)
			_, _ = recognizer.Recognize(ctx, img, nil)
			Expect(accelerated.inits.Load()).To(Equal(int32(1)))
		})
	})

	When("the image cannot be decoded", func() {
		BeforeEach(func() {
			img = Image{Data: []byte("not an image"), ContentType: "image/jpeg"}
		})

		It("returns ErrRecognitionFailed without calling the backend", func() {
			_, err := recognizer.Recognize(ctx, img, nil)
			Expect(err).To(MatchError(ErrRecognitionFailed))
			Expect(accelerated.backend.(*fakeBackend).calls.Load()).To(BeZero())
		})
	})

	When("the image is empty", func() {
		BeforeEach(func() {
			img = Image{ContentType: "image/png"}
		})

		It("returns ErrRecognitionFailed wrapping ErrEmptyImage", func() {
			_, err := recognizer.Recognize(ctx, img, nil)
			Expect(err).To(MatchError(ErrRecognitionFailed))
			Expect(err).To(MatchError(ErrEmptyImage))
		})
	})

	When("the backend wraps its output in a code fence", func() {
		BeforeEach(func() {
			accelerated.backend = &fakeBackend{name: "accelerated", text: "```\nvencimiento 15/01/2024\n```"}
		})

		It("returns the bare text", func() {
			text, err := recognizer.Recognize(ctx, img, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("vencimiento 15/01/2024"))
		})
	})

	When("many callers arrive before initialization finishes", func() {
		BeforeEach(func() {
			accelerated.delay = 50 * time.Millisecond
		})

		It("runs a single initialization", func() {
			var wg sync.WaitGroup
			errs := make(chan error, 10)
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := recognizer.Recognize(ctx, img, nil)
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(accelerated.inits.Load()).To(Equal(int32(1)))
		})
	})

	When("a caller gives up while initialization is in flight", func() {
		var slowInits atomic.Int32

		slowStrategy := func(name string, backend Backend) Strategy {
			return Strategy{
				Name: name,
				Init: func(ctx context.Context) (Backend, error) {
					slowInits.Add(1)
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-time.After(200 * time.Millisecond):
						return backend, nil
					}
				},
			}
		}

		BeforeEach(func() {
			slowInits.Store(0)
		})

		It("still hands the backend to the callers that kept waiting", func() {
			recognizer = NewRecognizer(
				slowStrategy("accelerated", accelerated.backend),
				slowStrategy("baseline", baseline.backend),
			)

			impatient, cancel := context.WithCancel(context.Background())
			impatientErr := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				_, err := recognizer.Recognize(impatient, img, nil)
				impatientErr <- err
			}()
			time.AfterFunc(40*time.Millisecond, cancel)

			time.Sleep(10 * time.Millisecond)
			text, err := recognizer.Recognize(context.Background(), img, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("saldo actual $45.000"))
			Expect(recognizer.Backend()).To(Equal("accelerated"))

			var gotErr error
			Eventually(impatientErr).Should(Receive(&gotErr))
			Expect(gotErr).To(MatchError(context.Canceled))
			Expect(errors.Is(gotErr, ErrRecognizerUnavailable)).To(BeFalse())
			Expect(slowInits.Load()).To(Equal(int32(1)))
		})

		It("returns the caller's own context error without blaming the backends", func() {
			recognizer = NewRecognizer(slowStrategy("accelerated", accelerated.backend))

			short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			_, err := recognizer.Recognize(short, img, nil)
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(errors.Is(err, ErrRecognizerUnavailable)).To(BeFalse())

			Eventually(recognizer.Backend).Should(Equal("accelerated"))
			_, err = recognizer.Recognize(context.Background(), img, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(slowInits.Load()).To(Equal(int32(1)))
		})
	})

	Describe("Close", func() {
		It("closes the cached backend", func() {
			_, err := recognizer.Recognize(ctx, img, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(recognizer.Close()).To(Succeed())
			Expect(accelerated.backend.(*fakeBackend).closed.Load()).To(BeTrue())
			Expect(recognizer.Backend()).To(BeEmpty())
		})

		It("is a no-op before initialization", func() {
			Expect(recognizer.Close()).To(Succeed())
		})
	})
})
