package monitor_test

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"focusguard/internal/core"
	"focusguard/internal/intervention"
	"focusguard/internal/monitor"
	"focusguard/internal/storage/sqlite"
)

type scriptedSource struct {
	mu  sync.Mutex
	pkg string
}

func (s *scriptedSource) set(pkg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pkg = pkg
}

func (s *scriptedSource) CurrentForegroundApp(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pkg, s.pkg != "", nil
}

type recordingSurface struct {
	mu        sync.Mutex
	presented []string
	handles   int
}

func (s *recordingSurface) Present(ctx context.Context, packageID string, oc intervention.OverlayContext) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles++
	s.presented = append(s.presented, packageID)
	return packageID, nil
}

func (s *recordingSurface) Dismiss(ctx context.Context, handle string) error {
	return nil
}

func (s *recordingSurface) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.presented)
}

var _ = Describe("Foreground monitor", func() {
	var (
		ctx       context.Context
		store     *sqlite.SQLiteStorage
		clock     *core.MockClock
		source    *scriptedSource
		surface   *recordingSurface
		ledger    *core.UsageLedger
		profiles  *core.ProfileService
		breaks    *core.BreakController
		presenter *intervention.Presenter
		mon       *monitor.Monitor
	)

	// Monday 2026-10-12 12:00 UTC
	start := time.Date(2026, 10, 12, 12, 0, 0, 0, time.UTC)

	tick := func(d time.Duration) {
		clock.Advance(d)
		mon.Tick(ctx)
	}

	// run ticks once per second for d
	run := func(d time.Duration) {
		for elapsed := time.Duration(0); elapsed < d; elapsed += time.Second {
			tick(time.Second)
		}
	}

	state := func() monitor.State {
		return mon.Snapshot().State
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		store, err = sqlite.New(filepath.Join(GinkgoT().TempDir(), "focusguard.db"), time.UTC)
		Expect(err).NotTo(HaveOccurred())

		clock = core.NewMockClock(start)
		source = &scriptedSource{}
		surface = &recordingSurface{}

		ledger = core.NewUsageLedger(store, clock, time.UTC)
		profiles = core.NewProfileService(store, clock, time.UTC)
		breaks = core.NewBreakController(store, profiles, clock, "com.focusguard", nil)
		Expect(breaks.Load(ctx)).To(Succeed())

		resolver := core.NewResolver(core.DefaultRules(breaks, profiles, store), ledger, clock, nil)
		presenter = intervention.NewPresenter(surface, store, clock, nil)

		mon = monitor.New(monitor.Dependencies{
			Source:    source,
			Ledger:    ledger,
			Resolver:  resolver,
			Breaks:    breaks,
			Presenter: presenter,
			Limits:    store,
		}, monitor.Config{PollInterval: time.Second, MaxTickGap: 5 * time.Second}, clock, nil)
		presenter.OnRelease(mon.Release)
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	Describe("flat app limits", func() {
		BeforeEach(func() {
			Expect(store.SaveAppLimit(ctx, &core.AppLimit{PackageID: "com.video", LimitMinutes: 20})).To(Succeed())
			Expect(ledger.AddUsage(ctx, "com.video", 19*time.Minute, clock.Now())).To(Succeed())
		})

		It("allows the app below the limit", func() {
			source.set("com.video")
			tick(0)
			run(30 * time.Second)

			Expect(state()).To(Equal(monitor.StateMonitoring))
			Expect(surface.count()).To(BeZero())
		})

		It("blocks the app once the limit is reached and shows the overlay once", func() {
			source.set("com.video")
			tick(0)
			run(70 * time.Second)

			Expect(state()).To(Equal(monitor.StateBlocked))
			Expect(surface.count()).To(Equal(1))

			total, err := ledger.TotalFor(ctx, "com.video", clock.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(19*time.Minute + 70*time.Second))
		})

		It("lets the user continue for five more minutes", func() {
			source.set("com.video")
			tick(0)
			run(61 * time.Second)
			Expect(state()).To(Equal(monitor.StateBlocked))

			Expect(presenter.GrantExtension(ctx, "com.video")).To(Succeed())
			Expect(state()).To(Equal(monitor.StateMonitoring))

			run(4 * time.Minute)
			Expect(state()).To(Equal(monitor.StateMonitoring))

			run(61 * time.Second)
			Expect(state()).To(Equal(monitor.StateBlocked))
			Expect(surface.count()).To(Equal(2))

			entries, err := store.ListOverrides(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Reason).To(Equal(intervention.ReasonExtension))
		})
	})

	Describe("breaks", func() {
		BeforeEach(func() {
			_, err := breaks.StartBreak(ctx, 15, []string{"com.maps"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("blocks non-whitelisted apps immediately", func() {
			source.set("com.social")
			tick(0)
			Expect(state()).To(Equal(monitor.StateBlocked))
		})

		It("keeps whitelisted and system apps usable", func() {
			for _, pkg := range []string{"com.maps", "com.android.dialer", "com.focusguard"} {
				source.set(pkg)
				tick(time.Second)
				Expect(state()).To(Equal(monitor.StateMonitoring), pkg)
			}
			Expect(surface.count()).To(BeZero())
		})

		It("stops enforcing once the break has ended", func() {
			source.set("com.maps")
			tick(0)

			clock.Advance(15 * time.Minute)
			tick(time.Second)
			Expect(breaks.IsActive()).To(BeFalse())

			source.set("com.social")
			tick(time.Second)
			Expect(state()).To(Equal(monitor.StateMonitoring))
		})

		It("survives a restart", func() {
			restarted := core.NewBreakController(store, profiles, clock, "com.focusguard", nil)
			Expect(restarted.Load(ctx)).To(Succeed())
			Expect(restarted.IsActive()).To(BeTrue())
			Expect(restarted.IsWhitelisted("com.maps")).To(BeTrue())
		})
	})

	Describe("scheduled profiles", func() {
		BeforeEach(func() {
			sleep, err := profiles.CreateProfile(ctx, &core.FocusProfile{
				Name:            "Sleep",
				ScheduleEnabled: true,
				ScheduleStart:   23 * 60,
				ScheduleEnd:     7 * 60,
				DaysOfWeek:      []int{1, 2, 3, 4, 5, 6, 7},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(profiles.SetPolicy(ctx, &core.ProfileAppPolicy{
				ProfileID:    sleep.ID,
				PackageID:    "com.social",
				LimitMinutes: core.PolicyBlocked,
			})).To(Succeed())
		})

		It("does not block outside the window", func() {
			source.set("com.social")
			tick(0)
			Expect(state()).To(Equal(monitor.StateMonitoring))
		})

		It("blocks inside the overnight window", func() {
			clock.Set(time.Date(2026, 10, 12, 23, 30, 0, 0, time.UTC))
			source.set("com.social")
			tick(0)
			Expect(state()).To(Equal(monitor.StateBlocked))
		})

		It("blocks after midnight on the following day", func() {
			clock.Set(time.Date(2026, 10, 13, 1, 0, 0, 0, time.UTC))
			source.set("com.social")
			tick(0)
			Expect(state()).To(Equal(monitor.StateBlocked))
		})
	})

	Describe("reconciliation", func() {
		It("never lowers live usage", func() {
			source.set("com.video")
			tick(0)
			run(10 * time.Second)

			_, err := ledger.Reconcile(ctx, clock.Now(), map[string]time.Duration{"com.video": 5 * time.Second})
			Expect(err).NotTo(HaveOccurred())

			total, err := ledger.TotalFor(ctx, "com.video", clock.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(10 * time.Second))
		})
	})
})
