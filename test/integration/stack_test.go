//go:build integration

package integration

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/bridge"
	"github.com/eliteGoblin/focusd/web_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
	"github.com/eliteGoblin/focusd/web_mon/internal/remote"
)

const redirectURL = "redirect.html"

// stack is a whole daemon wired the way `webmon run` wires it, with
// short intervals and a bridge on a random port.
type stack struct {
	store  *infra.EncryptedStore
	server *bridge.Server
	api    *resty.Client
	cancel context.CancelFunc
	done   chan struct{}
}

func startStack(dataDir, peerURL string) *stack {
	logger := zap.NewNop()

	key, err := infra.EnsureKey(infra.NewFileKeyProvider(dataDir), infra.ResolvePaths(dataDir).Store)
	Expect(err).NotTo(HaveOccurred())
	store, err := infra.NewEncryptedStore(dataDir, key)
	Expect(err).NotTo(HaveOccurred())

	metrics := infra.NewMetrics()
	kv := infra.NewWriteBehind(store, metrics, logger)
	ext := bridge.NewExtension(metrics, logger)
	syncClient := remote.NewClient(remote.Options{
		URL:        peerURL,
		RetryDelay: 50 * time.Millisecond,
	}, logger)
	syncClient.OnStateChange(metrics.SyncStateChanged)

	d := daemon.New(daemon.Config{
		FocusPollInterval: 10 * time.Millisecond,
		ProbeInterval:     time.Hour,
		FeedInterval:      20 * time.Millisecond,
		TelemetryInterval: 20 * time.Millisecond,
		RedirectURL:       redirectURL,
	}, daemon.Deps{
		Store:      kv,
		Browser:    ext,
		Navigator:  ext,
		Suppressor: ext,
		Sync:       syncClient,
		Metrics:    metrics,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	Expect(d.Load(ctx)).To(Succeed())

	server := bridge.NewServer(bridge.Options{
		Addr:    "127.0.0.1:0",
		Metrics: metrics.Handler(),
		Release: true,
	}, ext, d, logger)
	Expect(server.Listen()).To(Succeed())

	s := &stack{
		store:  store,
		server: server,
		api:    resty.New().SetBaseURL("http://" + server.Addr()).SetTimeout(2 * time.Second),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	storeCtx, stopStore := context.WithCancel(context.Background())
	storeDone := make(chan struct{})
	go func() {
		defer close(storeDone)
		kv.Run(storeCtx)
	}()

	go func() {
		defer close(s.done)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			syncClient.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			_ = server.Serve(ctx)
		}()
		_ = d.Run(ctx)
		wg.Wait()
		stopStore()
		<-storeDone
	}()
	return s
}

func (s *stack) addr() string {
	return s.server.Addr()
}

func (s *stack) stop() {
	s.cancel()
	Eventually(s.done, 5*time.Second).Should(BeClosed())
	Expect(s.store.Close()).To(Succeed())
}

func (s *stack) usage() domain.SiteUsage {
	var feed domain.UsageFeed
	resp, err := s.api.R().SetResult(&feed).Get("/api/usage")
	Expect(err).NotTo(HaveOccurred())
	Expect(resp.IsSuccess()).To(BeTrue(), resp.String())
	return feed.SiteUsage
}

func (s *stack) status() domain.DaemonStatus {
	var st domain.DaemonStatus
	resp, err := s.api.R().SetResult(&st).Get("/api/status")
	Expect(err).NotTo(HaveOccurred())
	Expect(resp.IsSuccess()).To(BeTrue(), resp.String())
	return st
}

func (s *stack) policy() domain.Policy {
	var p domain.Policy
	resp, err := s.api.R().SetResult(&p).Get("/api/policy")
	Expect(err).NotTo(HaveOccurred())
	Expect(resp.IsSuccess()).To(BeTrue(), resp.String())
	return p
}
