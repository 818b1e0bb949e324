//go:build integration

package integration

import (
	"encoding/json"
	"os"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/eliteGoblin/focusd/web_mon/internal/bridge"
	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
	"github.com/eliteGoblin/focusd/web_mon/test/fixtures"
)

var _ = Describe("webmon daemon", func() {
	var (
		tmpDir string
		peer   *fixtures.FakePeer
		s      *stack
		ext    *fixtures.FakeExtension
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "webmon-integration-*")
		Expect(err).NotTo(HaveOccurred())

		peer = fixtures.NewFakePeer()
		s = startStack(tmpDir, peer.URL())
		Eventually(peer.Accepted(), 2*time.Second).Should(Receive())

		ext, err = fixtures.DialExtension(s.addr())
		Expect(err).NotTo(HaveOccurred())
		Eventually(func() bool { return s.status().ExtensionAttached }).Should(BeTrue())
	})

	AfterEach(func() {
		if ext != nil {
			ext.Close()
		}
		if s != nil {
			s.stop()
		}
		peer.Close()
		os.RemoveAll(tmpDir)
	})

	browse := func(tabID int, url string) {
		Expect(ext.Focus(true, tabID, url)).To(Succeed())
		Expect(ext.ActivateTab(tabID, url)).To(Succeed())
	}

	Describe("Time tracking", func() {
		Context("when a focused tab shows a site", func() {
			It("should accrue time for its domain and report it to the peer", func() {
				browse(1, "https://www.example.com/page")

				Eventually(func() float64 { return s.usage()["example.com"] }).Should(BeNumerically(">", 0))
				Eventually(func() float64 { return peer.LastUsage()["example.com"] }).Should(BeNumerically(">", 0))

				st := s.status()
				Expect(st.Tracking).To(BeTrue())
				Expect(st.ActiveDomain).To(Equal("example.com"))
				Expect(st.SyncState).To(Equal("connected"))
			})
		})

		Context("when the browser loses focus", func() {
			It("should stop accruing", func() {
				browse(1, "https://example.com/")
				Eventually(func() float64 { return s.usage()["example.com"] }).Should(BeNumerically(">", 0))

				Expect(ext.Focus(false, 0, "")).To(Succeed())
				Eventually(func() bool { return s.status().Focused }).Should(BeFalse())

				frozen := s.usage()["example.com"]
				Consistently(func() float64 { return s.usage()["example.com"] }, 200*time.Millisecond).
					Should(Equal(frozen))
			})
		})

		Context("when the active tab moves to a non-web page", func() {
			It("should pause tracking", func() {
				browse(1, "https://example.com/")
				Eventually(func() bool { return s.status().Tracking }).Should(BeTrue())

				Expect(ext.Navigate(1, "chrome://settings")).To(Succeed())
				Eventually(func() bool { return s.status().Tracking }).Should(BeFalse())
			})
		})
	})

	Describe("Blocking", func() {
		Context("when the peer blocks the active site", func() {
			It("should redirect the active tab", func() {
				browse(7, "https://www.example.org/today")
				Eventually(func() bool { return s.status().Tracking }).Should(BeTrue())

				Expect(peer.Block("example.org")).To(Succeed())

				Eventually(func() bool { return ext.NavigatedTo(7, redirectURL) }).Should(BeTrue())
				Expect(s.policy().BlockList).To(ContainElement("example.org"))
			})
		})

		Context("when a subdomain of a blocked site is active", func() {
			It("should not redirect, since block entries match exactly", func() {
				Expect(peer.Block("example.org")).To(Succeed())
				Eventually(func() []string { return s.policy().BlockList }).Should(ContainElement("example.org"))

				browse(8, "https://news.example.org/today")
				Eventually(func() string { return s.status().ActiveDomain }).Should(Equal("news.example.org"))
				Consistently(func() bool { return ext.NavigatedTo(8, redirectURL) }, 200*time.Millisecond).
					Should(BeFalse())
			})
		})

		Context("when a blocked site is also allowed", func() {
			It("should not redirect", func() {
				Expect(peer.Allow("example.org")).To(Succeed())
				Eventually(func() []string { return s.policy().AllowList }).Should(ContainElement("example.org"))
				Expect(peer.Block("example.org")).To(Succeed())
				Eventually(func() []string { return s.policy().BlockList }).Should(ContainElement("example.org"))

				browse(3, "https://example.org/")
				Eventually(func() bool { return s.status().Tracking }).Should(BeTrue())
				Consistently(func() bool { return ext.NavigatedTo(3, redirectURL) }, 200*time.Millisecond).
					Should(BeFalse())
			})
		})

		Context("when enforcement is turned off", func() {
			It("should let blocked sites through", func() {
				Expect(peer.SetEnforcement(false)).To(Succeed())
				Eventually(func() bool { return s.policy().EnforcementEnabled }).Should(BeFalse())
				Expect(peer.Block("example.net")).To(Succeed())
				Eventually(func() []string { return s.policy().BlockList }).Should(ContainElement("example.net"))

				browse(4, "https://example.net/")
				Consistently(func() bool { return ext.NavigatedTo(4, redirectURL) }, 200*time.Millisecond).
					Should(BeFalse())
			})
		})

		Context("when the peer sends garbage", func() {
			It("should drop it and keep applying updates", func() {
				Expect(peer.PushRaw([]byte("{not json"))).To(Succeed())
				Expect(peer.PushRaw([]byte(`{"event":"website_blacklist_updated","data":{}}`))).To(Succeed())
				Expect(peer.Block("example.com")).To(Succeed())

				Eventually(func() []string { return s.policy().BlockList }).Should(Equal([]string{"example.com"}))
			})
		})
	})

	Describe("Media suppression", func() {
		Context("when images are toggled over the API", func() {
			It("should tell the extension and reload the tab", func() {
				browse(2, "https://example.com/")
				Eventually(func() bool { return s.status().Tracking }).Should(BeTrue())

				var state domain.MediaState
				resp, err := s.api.R().SetResult(&state).Post("/api/toggle/images")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.IsSuccess()).To(BeTrue())
				Expect(state.ImagesBlocked).To(BeTrue())

				Eventually(func() bool {
					var setImages, reload bool
					for _, c := range ext.Received() {
						if c.Type == bridge.CmdSetImages && c.TabID == 2 && c.Enabled != nil && *c.Enabled {
							setImages = true
						}
						if c.Type == bridge.CmdReload && c.TabID == 2 {
							reload = true
						}
					}
					return setImages && reload
				}).Should(BeTrue())

				Expect(s.policy().ImagesBlocked).To(BeTrue())
			})
		})
	})

	Describe("Popup", func() {
		It("should receive a usage feed and answer media queries", func() {
			browse(1, "https://example.com/")

			conn, err := fixtures.DialPopup(s.addr())
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()
			Expect(conn.SetReadDeadline(time.Now().Add(3 * time.Second))).To(Succeed())

			raw, err := fixtures.ReadFeed(conn, "siteUsage")
			Expect(err).NotTo(HaveOccurred())
			var usage domain.SiteUsage
			Expect(json.Unmarshal(raw, &usage)).To(Succeed())

			Expect(conn.WriteJSON(bridge.PopupRequest{Action: bridge.ActionMediaState})).To(Succeed())
			_, err = fixtures.ReadFeed(conn, "imagesEnabled")
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() int { return s.status().Observers }).Should(Equal(1))
			Expect(conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))).To(Succeed())
			Eventually(func() int { return s.status().Observers }).Should(Equal(0))
		})
	})

	Describe("Sync channel", func() {
		Context("when the peer drops the connection", func() {
			It("should reconnect and keep reporting", func() {
				browse(1, "https://example.com/")
				Eventually(peer.Reports).Should(BeNumerically(">", 0))

				peer.Drop()
				Eventually(peer.Accepts, 2*time.Second).Should(BeNumerically(">=", 2))

				before := peer.Reports()
				Eventually(peer.Reports).Should(BeNumerically(">", before))
			})
		})
	})

	Describe("Metrics", func() {
		It("should expose daemon counters", func() {
			browse(1, "https://example.com/")
			Eventually(func() bool { return s.status().Tracking }).Should(BeTrue())
			Expect(peer.Block("example.com")).To(Succeed())
			Eventually(func() bool { return ext.NavigatedTo(1, redirectURL) }).Should(BeTrue())

			resp, err := s.api.R().Get("/metrics")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.String()).To(MatchRegexp(`webmon_redirects_total [1-9]`))
			Expect(resp.String()).To(ContainSubstring("webmon_extension_connected 1"))
		})
	})

	Describe("Persistence", func() {
		It("should restore usage and policy after a restart", func() {
			browse(1, "https://example.com/")
			Expect(peer.Block("blocked.example")).To(Succeed())
			Eventually(func() float64 { return s.usage()["example.com"] }).Should(BeNumerically(">", 0))
			Eventually(func() []string { return s.policy().BlockList }).Should(ContainElement("blocked.example"))

			ext.Close()
			ext = nil
			before := s.usage()["example.com"]
			s.stop()
			s = nil

			s = startStack(tmpDir, peer.URL())
			Expect(s.usage()["example.com"]).To(BeNumerically(">=", before))
			Expect(s.policy().BlockList).To(ContainElement("blocked.example"))
		})
	})
})

var _ = Describe("Daemon registry", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "webmon-registry-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("should persist the running daemon across registry instances", func() {
		pm := infra.NewProcessManager()
		first := infra.NewFileRegistry(tmpDir, pm)
		Expect(first.Register(domain.DaemonRecord{
			PID:        os.Getpid(),
			BridgeAddr: "127.0.0.1:7878",
			StartedAt:  time.Now().Unix(),
		})).To(Succeed())

		second := infra.NewFileRegistry(tmpDir, pm)
		rec, err := second.Get()
		Expect(err).NotTo(HaveOccurred())
		Expect(rec).NotTo(BeNil())
		Expect(rec.BridgeAddr).To(Equal("127.0.0.1:7878"))

		alive, err := second.IsAlive()
		Expect(err).NotTo(HaveOccurred())
		Expect(alive).To(BeTrue())

		Expect(second.Clear()).To(Succeed())
		rec, err = first.Get()
		Expect(err).NotTo(HaveOccurred())
		Expect(rec).To(BeNil())
	})
})
