package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/zkattest/internal/config/prover"
	memoryconfig "github.com/weisyn/zkattest/internal/config/storage/memory"
	eventbus "github.com/weisyn/zkattest/internal/core/infrastructure/event"
	"github.com/weisyn/zkattest/internal/core/infrastructure/storage/memory"
	"github.com/weisyn/zkattest/internal/core/proofgen/backend"
	"github.com/weisyn/zkattest/internal/core/proofgen/backend/gnark"
	"github.com/weisyn/zkattest/internal/core/proofgen/cache"
	"github.com/weisyn/zkattest/internal/core/proofgen/collector"
	"github.com/weisyn/zkattest/internal/core/proofgen/sink"
	"github.com/weisyn/zkattest/internal/core/proofgen/witness"
	"github.com/weisyn/zkattest/internal/testutil"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/storage"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

// ============================================================================
// 测试装置
// ============================================================================

const (
	testChain = 7
	fakeID    = "fake-v1"
	waitFor   = 5 * time.Second
	tick      = 5 * time.Millisecond
)

type harnessConfig struct {
	opts      *prover.ProverOptions
	store     storage.BlobStore
	plugins   []proofgen.BackendPlugin
	collector proofgen.EvidenceCollector
	wrapCache func(proofgen.ProofCache) proofgen.ProofCache
}

type harnessOption func(*harnessConfig)

func withOptions(tune func(*prover.ProverOptions)) harnessOption {
	return func(c *harnessConfig) { tune(c.opts) }
}

func withStore(store storage.BlobStore) harnessOption {
	return func(c *harnessConfig) { c.store = store }
}

func withPlugins(plugins ...proofgen.BackendPlugin) harnessOption {
	return func(c *harnessConfig) { c.plugins = plugins }
}

func withCollector(coll proofgen.EvidenceCollector) harnessOption {
	return func(c *harnessConfig) { c.collector = coll }
}

func withCacheWrapper(wrap func(proofgen.ProofCache) proofgen.ProofCache) harnessOption {
	return func(c *harnessConfig) { c.wrapCache = wrap }
}

// gatedCache 启用后，下一次未命中的 Get 在返回前阻塞，直到 release 被关闭
type gatedCache struct {
	proofgen.ProofCache
	armed   atomic.Bool
	missed  chan struct{}
	release chan struct{}
}

func newGatedCache() *gatedCache {
	return &gatedCache{missed: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gatedCache) wrap(inner proofgen.ProofCache) proofgen.ProofCache {
	g.ProofCache = inner
	return g
}

func (g *gatedCache) Get(ctx context.Context, digest common.Hash, backendID string) (*types.ProofArtifact, proofgen.CacheTier) {
	artifact, tier := g.ProofCache.Get(ctx, digest, backendID)
	if tier == proofgen.CacheMiss && g.armed.CompareAndSwap(true, false) {
		g.missed <- struct{}{}
		<-g.release
	}
	return artifact, tier
}

type harness struct {
	t         *testing.T
	orch      *Orchestrator
	registry  *backend.Registry
	keys      *backend.KeyStore
	cache     *cache.Cache
	collector *collector.Static
	results   *sink.Memory
	fake      *testutil.FakeBackend
	backendID string

	mu          sync.Mutex
	transitions map[string][]types.JobState
}

func newHarness(t *testing.T, options ...harnessOption) *harness {
	t.Helper()

	opts := prover.DefaultOptions()
	opts.Workers = 2
	opts.InitialBackoff = time.Millisecond
	opts.MaxBackoff = 5 * time.Millisecond
	cfg := &harnessConfig{opts: opts}
	for _, o := range options {
		o(cfg)
	}
	if len(cfg.plugins) == 0 {
		cfg.plugins = []proofgen.BackendPlugin{testutil.NewFakeBackend(fakeID, 1)}
	}

	logger := testutil.NewTestLogger()
	keys := backend.NewKeyStore(cfg.store, proofgen.SetupParams{}, logger)
	registry := backend.NewRegistry(keys, logger)
	for _, p := range cfg.plugins {
		require.NoError(t, registry.Register(p))
	}
	c, err := cache.New(16, registry, cfg.store, logger)
	require.NoError(t, err)
	registry.OnUpgrade(c.OnUpgrade())

	h := &harness{
		t:           t,
		registry:    registry,
		keys:        keys,
		cache:       c,
		collector:   collector.NewStatic(),
		results:     sink.NewMemory(0),
		backendID:   cfg.plugins[0].Descriptor().ID,
		transitions: make(map[string][]types.JobState),
	}
	if fb, ok := cfg.plugins[0].(*testutil.FakeBackend); ok {
		h.fake = fb
	}

	var coll proofgen.EvidenceCollector = h.collector
	if cfg.collector != nil {
		coll = cfg.collector
	}

	bus := eventbus.New()
	require.NoError(t, bus.Subscribe(event.EventTypeJobTransition, func(ev types.JobEvent) {
		h.mu.Lock()
		h.transitions[ev.RequestID] = append(h.transitions[ev.RequestID], ev.To)
		h.mu.Unlock()
	}))

	var pc proofgen.ProofCache = c
	if cfg.wrapCache != nil {
		pc = cfg.wrapCache(c)
	}

	h.orch, err = New(cfg.opts, Deps{
		Registry:  registry,
		Keys:      keys,
		Collector: coll,
		Builder:   witness.New(cfg.opts.MaxEvidenceBytes, logger),
		Cache:     pc,
		Sink:      h.results,
		Events:    bus,
		Metrics:   prometheus.NewRegistry(),
		Logger:    logger,
	})
	require.NoError(t, err)
	require.NoError(t, h.orch.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = h.orch.Stop(ctx)
	})
	return h
}

// newRequest 构造请求，不登记证据
func (h *harness) newRequest(height, amount uint64) *types.ProofRequest {
	event := testutil.TransferEvent(common.HexToHash("0xabc1"), amount)
	return &types.ProofRequest{
		ChainID:   testChain,
		Anchor:    testutil.TestAnchor(testChain, height),
		Event:     event,
		BackendID: h.backendID,
	}
}

// request 构造请求并登记对应的 Merkle 证据
func (h *harness) request(height, amount uint64) *types.ProofRequest {
	req := h.newRequest(height, amount)
	require.NoError(h.t, h.collector.Add(req.Anchor, req.Event, testutil.MerkleEvidence(req.Event, 1, 4)))
	return req
}

func (h *harness) submit(req *types.ProofRequest) string {
	id, err := h.orch.Submit(context.Background(), req)
	require.NoError(h.t, err)
	return id
}

func (h *harness) wait(id string) (*types.ProofArtifact, error) {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	return h.orch.Wait(ctx, id)
}

func (h *harness) status(id string) *types.JobSnapshot {
	s, err := h.orch.Status(id)
	require.NoError(h.t, err)
	return s
}

func (h *harness) waitState(id string, state types.JobState) {
	require.Eventually(h.t, func() bool {
		s, err := h.orch.Status(id)
		return err == nil && s.State == state
	}, waitFor, tick, "request %s never reached %s", id, state)
}

func (h *harness) states(id string) []types.JobState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.JobState(nil), h.transitions[id]...)
}

func requireKind(t *testing.T, kind types.ErrorKind, err error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, types.KindOf(err), "unexpected error: %v", err)
}

// ============================================================================
// 基本流程
// ============================================================================

func TestOrchestrator_ProveAndCache(t *testing.T) {
	h := newHarness(t)
	req := h.request(1000, 100)

	id := h.submit(req)
	artifact, err := h.wait(id)
	require.NoError(t, err)
	require.Equal(t, fakeID, artifact.Backend.ID)
	require.Equal(t, 1, artifact.Metadata.Attempts)
	require.Equal(t, len(artifact.ProofBytes), artifact.Metadata.ProofSize)
	require.NotEqual(t, common.Hash{}, artifact.WitnessDigest)

	// 资源开销按证明密钥与见证编码大小估算
	pair, err := h.keys.Load(context.Background(), h.fake)
	require.NoError(t, err)
	w, err := witness.New(0, testutil.NewTestLogger()).Build(testutil.MerkleEvidence(req.Event, 1, 4), req.Anchor, req.Event, witness.SchemaV1)
	require.NoError(t, err)
	require.Equal(t, uint64(pair.ProvingKeySize+w.Size()), artifact.Metadata.AllocatedBytes)

	s := h.status(id)
	require.Equal(t, types.JobCompleted, s.State)
	require.False(t, s.CacheHit)
	require.Equal(t, artifact.WitnessDigest, s.WitnessDigest)

	// 结果投递先于 Wait 返回
	got, ok := h.results.Get(id)
	require.True(t, ok)
	require.Equal(t, artifact, got)

	require.Eventually(t, func() bool {
		states := h.states(id)
		for _, want := range []types.JobState{
			types.JobPending, types.JobWitnessBuilding, types.JobQueued,
			types.JobProving, types.JobSelfVerifying, types.JobCompleted,
		} {
			if !containsState(states, want) {
				return false
			}
		}
		return true
	}, waitFor, tick)

	// 相同请求命中缓存，不再调用后端
	id2 := h.submit(req)
	cached, err := h.wait(id2)
	require.NoError(t, err)
	require.Equal(t, artifact, cached)
	require.True(t, h.status(id2).CacheHit)
	require.EqualValues(t, 1, h.fake.ProveCalls.Load())
	require.EqualValues(t, 1, h.fake.SetupCalls.Load())
	require.Equal(t, 2, h.results.Len())

	// 调用方修改返回值不影响后续结果
	cached.ProofBytes[0] ^= 0xff
	again, err := h.orch.Prove(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, artifact.ProofBytes, again.ProofBytes)

	stats := h.orch.Stats()
	require.Equal(t, 2, stats.Workers)
	require.Equal(t, 0, stats.InflightJobs)
	require.Equal(t, 0, stats.ActiveRequests)
}

func containsState(states []types.JobState, want types.JobState) bool {
	for _, s := range states {
		if s == want {
			return true
		}
	}
	return false
}

func TestOrchestrator_CoalescesIdenticalRequests(t *testing.T) {
	h := newHarness(t)
	started, release := h.fake.Block()
	defer release()

	const n = 5
	req := h.request(1000, 100)
	ids := make([]string, n)
	for i := range ids {
		ids[i] = h.submit(req)
	}

	<-started
	for _, id := range ids {
		h.waitState(id, types.JobProving)
	}
	require.Equal(t, n, h.status(ids[0]).Waiters)
	require.Equal(t, 1, h.orch.Stats().InflightJobs)

	release()
	var first *types.ProofArtifact
	for _, id := range ids {
		a, err := h.wait(id)
		require.NoError(t, err)
		if first == nil {
			first = a
			continue
		}
		require.Equal(t, first, a)
	}

	require.EqualValues(t, 1, h.fake.ProveCalls.Load())
	require.Equal(t, n, h.results.Len())
	require.Equal(t, float64(n-1), promtestutil.ToFloat64(h.orch.metrics.coalesced))
}

// TestOrchestrator_IdenticalRequestAfterCommit 相同请求在缓存未命中之后、
// 入队之前原任务已完成出表，入队时命中内存缓存而不是再次证明
func TestOrchestrator_IdenticalRequestAfterCommit(t *testing.T) {
	gate := newGatedCache()
	h := newHarness(t, withCacheWrapper(gate.wrap))
	started, release := h.fake.Block()
	defer release()

	req := h.request(1000, 100)
	a := h.submit(req)
	<-started
	h.waitState(a, types.JobProving)

	gate.armed.Store(true)
	b := h.submit(req)
	<-gate.missed

	release()
	first, err := h.wait(a)
	require.NoError(t, err)
	require.Equal(t, 0, h.orch.Stats().InflightJobs)
	close(gate.release)

	second, err := h.wait(b)
	require.NoError(t, err)
	require.Equal(t, first.ProofBytes, second.ProofBytes)
	require.True(t, h.status(b).CacheHit)
	require.EqualValues(t, 1, h.fake.ProveCalls.Load())
	require.Equal(t, 2, h.results.Len())
}

func TestOrchestrator_DistinctBackendsDoNotCoalesce(t *testing.T) {
	other := testutil.NewFakeBackend("fake-v2", 1)
	h := newHarness(t, withPlugins(testutil.NewFakeBackend(fakeID, 1), other))

	req := h.request(1000, 100)
	a, err := h.orch.Prove(context.Background(), req)
	require.NoError(t, err)

	req2 := *req
	req2.BackendID = other.Descriptor().ID
	b, err := h.orch.Prove(context.Background(), &req2)
	require.NoError(t, err)

	require.Equal(t, a.WitnessDigest, b.WitnessDigest)
	require.NotEqual(t, a.ProofBytes, b.ProofBytes)
	require.EqualValues(t, 1, h.fake.ProveCalls.Load())
	require.EqualValues(t, 1, other.ProveCalls.Load())
}

// ============================================================================
// 自检与重试
// ============================================================================

func TestOrchestrator_LyingBackendIsProverFault(t *testing.T) {
	h := newHarness(t, withOptions(func(o *prover.ProverOptions) { o.SelfVerifyRetries = 2 }))
	h.fake.Lie(-1)

	req := h.request(1000, 100)
	id := h.submit(req)
	_, err := h.wait(id)
	requireKind(t, types.KindProverFault, err)
	require.ErrorIs(t, err, types.ErrProverFault)

	s := h.status(id)
	require.Equal(t, types.JobFailed, s.State)
	require.Equal(t, types.KindProverFault, s.ErrorKind)
	require.EqualValues(t, 3, h.fake.ProveCalls.Load())
	require.Equal(t, 0, h.results.Len())

	require.Eventually(t, func() bool { return containsState(h.states(id), types.JobFailed) }, waitFor, tick)
	require.False(t, containsState(h.states(id), types.JobCompleted))

	// 未通过自检的结果不进入缓存
	digest := s.WitnessDigest
	_, tier := h.cache.Get(context.Background(), digest, fakeID)
	require.Equal(t, proofgen.CacheMiss, tier)
	require.Equal(t, float64(1), promtestutil.ToFloat64(h.orch.metrics.proverFaults.WithLabelValues(fakeID)))
}

func TestOrchestrator_SelfVerifyRetry(t *testing.T) {
	h := newHarness(t, withOptions(func(o *prover.ProverOptions) { o.SelfVerifyRetries = 2 }))
	h.fake.Lie(1)

	a, err := h.orch.Prove(context.Background(), h.request(1000, 100))
	require.NoError(t, err)
	require.Equal(t, 2, a.Metadata.Attempts)
	require.EqualValues(t, 2, h.fake.ProveCalls.Load())
}

func TestOrchestrator_TransientRetries(t *testing.T) {
	h := newHarness(t, withOptions(func(o *prover.ProverOptions) { o.MaxRetries = 2 }))

	h.fake.FailTransient(2)
	a, err := h.orch.Prove(context.Background(), h.request(1000, 100))
	require.NoError(t, err)
	require.Equal(t, 3, a.Metadata.Attempts)
	require.EqualValues(t, 3, h.fake.ProveCalls.Load())

	// 重试耗尽
	h.fake.FailTransient(10)
	_, err = h.orch.Prove(context.Background(), h.request(1001, 100))
	requireKind(t, types.KindResourceExhausted, err)
	require.EqualValues(t, 6, h.fake.ProveCalls.Load())
}

func TestOrchestrator_ShapeErrorNotRetried(t *testing.T) {
	h := newHarness(t, withOptions(func(o *prover.ProverOptions) { o.MaxRetries = 3 }))
	h.fake.RejectShape()

	_, err := h.orch.Prove(context.Background(), h.request(1000, 100))
	requireKind(t, types.KindProverFault, err)
	require.EqualValues(t, 1, h.fake.ProveCalls.Load())
}

func TestOrchestrator_ProveTimeout(t *testing.T) {
	h := newHarness(t, withOptions(func(o *prover.ProverOptions) {
		o.ProveTimeout = 10 * time.Millisecond
		o.MaxRetries = 1
	}))
	h.fake.SetProveDelay(30 * time.Millisecond)

	_, err := h.orch.Prove(context.Background(), h.request(1000, 100))
	requireKind(t, types.KindTimeout, err)
	require.EqualValues(t, 2, h.fake.ProveCalls.Load())
}

// ============================================================================
// 版本失效与持久化层
// ============================================================================

func TestOrchestrator_UpgradeInvalidatesCache(t *testing.T) {
	h := newHarness(t)
	req := h.request(1000, 100)

	v1, err := h.orch.Prove(context.Background(), req)
	require.NoError(t, err)
	require.EqualValues(t, 1, v1.Backend.Version)

	upgraded := h.fake.WithVersion(2)
	require.NoError(t, h.registry.Upgrade(upgraded))

	id := h.submit(req)
	v2, err := h.wait(id)
	require.NoError(t, err)
	require.EqualValues(t, 2, v2.Backend.Version)
	require.False(t, h.status(id).CacheHit)
	require.NotEqual(t, v1.ProofBytes, v2.ProofBytes)
	require.EqualValues(t, 1, upgraded.ProveCalls.Load())
}

func TestOrchestrator_PersistedTierReverified(t *testing.T) {
	store, err := memory.New(memoryconfig.New(nil), testutil.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	first := newHarness(t, withStore(store))
	original, err := first.orch.Prove(context.Background(), first.request(1000, 100))
	require.NoError(t, err)

	// 新实例共享持久化存储，结果经后端重新验证后直接返回
	second := newHarness(t, withStore(store))
	id := second.submit(second.request(1000, 100))
	got, err := second.wait(id)
	require.NoError(t, err)
	require.Equal(t, original.ProofBytes, got.ProofBytes)
	require.True(t, second.status(id).CacheHit)
	require.EqualValues(t, 0, second.fake.ProveCalls.Load())

	// 已提升到内存层
	_, tier := second.cache.Get(context.Background(), got.WitnessDigest, fakeID)
	require.Equal(t, proofgen.CacheMemory, tier)
}

// ============================================================================
// 背压、截止时间与取消
// ============================================================================

func TestOrchestrator_Backpressure(t *testing.T) {
	h := newHarness(t, withOptions(func(o *prover.ProverOptions) {
		o.Workers = 1
		o.MaxQueueDepth = 0
	}))
	started, release := h.fake.Block()
	defer release()

	a := h.submit(h.request(1000, 100))
	<-started

	b := h.submit(h.request(1001, 100))
	_, err := h.wait(b)
	requireKind(t, types.KindResourceExhausted, err)
	require.Equal(t, types.JobFailed, h.status(b).State)

	release()
	_, err = h.wait(a)
	require.NoError(t, err)
	require.EqualValues(t, 1, h.fake.ProveCalls.Load())
}

func TestOrchestrator_MaxPending(t *testing.T) {
	h := newHarness(t, withOptions(func(o *prover.ProverOptions) { o.MaxPending = 1 }))
	started, release := h.fake.Block()
	defer release()

	a := h.submit(h.request(1000, 100))
	<-started

	_, err := h.orch.Submit(context.Background(), h.request(1001, 100))
	requireKind(t, types.KindResourceExhausted, err)

	release()
	_, err = h.wait(a)
	require.NoError(t, err)

	// 名额释放后可以继续提交
	_, err = h.orch.Prove(context.Background(), h.request(1001, 100))
	require.NoError(t, err)
}

func TestOrchestrator_PastDeadline(t *testing.T) {
	h := newHarness(t)
	req := h.request(1000, 100)
	req.Deadline = time.Now().Add(-time.Second)

	_, err := h.orch.Submit(context.Background(), req)
	requireKind(t, types.KindDeadlineExceeded, err)
	require.ErrorIs(t, err, types.ErrDeadlineExceeded)
	require.EqualValues(t, 0, h.fake.ProveCalls.Load())
	require.Equal(t, 0, h.orch.Stats().ActiveRequests)
}

func TestOrchestrator_DeadlineWhileQueued(t *testing.T) {
	h := newHarness(t, withOptions(func(o *prover.ProverOptions) {
		o.Workers = 1
		o.MaxQueueDepth = 8
	}))
	started, release := h.fake.Block()
	defer release()

	a := h.submit(h.request(1000, 100))
	<-started

	// 等待方截止
	waited := h.request(1001, 100)
	waited.Deadline = time.Now().Add(150 * time.Millisecond)
	b := h.submit(waited)
	h.waitState(b, types.JobQueued)
	_, err := h.wait(b)
	requireKind(t, types.KindDeadlineExceeded, err)

	// 无人等待，出队时截止
	idle := h.request(1002, 100)
	idle.Deadline = time.Now().Add(100 * time.Millisecond)
	c := h.submit(idle)
	h.waitState(c, types.JobQueued)
	time.Sleep(150 * time.Millisecond)

	release()
	_, err = h.wait(a)
	require.NoError(t, err)
	h.waitState(c, types.JobFailed)
	require.Equal(t, types.KindDeadlineExceeded, h.status(c).ErrorKind)

	require.EqualValues(t, 1, h.fake.ProveCalls.Load())
	require.Eventually(t, func() bool { return h.orch.Stats().InflightJobs == 0 }, waitFor, tick)
}

// TestOrchestrator_DeadlineWhileProving 证明开始后截止：请求以 DeadlineExceeded 结束，
// 证明仍然完成并写入缓存，但不向该请求投递
func TestOrchestrator_DeadlineWhileProving(t *testing.T) {
	h := newHarness(t)
	started, release := h.fake.Block()
	defer release()

	req := h.request(1000, 100)
	req.Deadline = time.Now().Add(300 * time.Millisecond)
	id := h.submit(req)
	<-started
	h.waitState(id, types.JobProving)

	_, err := h.wait(id)
	requireKind(t, types.KindDeadlineExceeded, err)
	s := h.status(id)
	require.Equal(t, types.JobFailed, s.State)
	require.Equal(t, types.KindDeadlineExceeded, s.ErrorKind)

	release()
	require.Eventually(t, func() bool { return h.orch.Stats().InflightJobs == 0 }, waitFor, tick)
	require.Equal(t, types.JobFailed, h.status(id).State)
	_, ok := h.results.Get(id)
	require.False(t, ok)
	require.Equal(t, 1, h.cache.Stats().Entries)

	req.Deadline = time.Time{}
	again := h.submit(req)
	_, err = h.wait(again)
	require.NoError(t, err)
	require.True(t, h.status(again).CacheHit)
	require.EqualValues(t, 1, h.fake.ProveCalls.Load())
}

func TestOrchestrator_PriorityOrder(t *testing.T) {
	h := newHarness(t, withOptions(func(o *prover.ProverOptions) { o.Workers = 1 }))
	notify := h.results.Notify(8)
	started, release := h.fake.Block()
	defer release()

	blocker := h.submit(h.request(1000, 100))
	<-started

	lowReq := h.request(1001, 100)
	lowReq.Priority = 1
	low := h.submit(lowReq)
	h.waitState(low, types.JobQueued)

	highReq := h.request(1002, 100)
	highReq.Priority = 10
	high := h.submit(highReq)
	h.waitState(high, types.JobQueued)

	release()
	var order []string
	for i := 0; i < 3; i++ {
		select {
		case d := <-notify:
			order = append(order, d.RequestID)
		case <-time.After(waitFor):
			t.Fatalf("timed out waiting for delivery %d", i)
		}
	}
	require.Equal(t, []string{blocker, high, low}, order)
}

func TestOrchestrator_Cancel(t *testing.T) {
	h := newHarness(t, withOptions(func(o *prover.ProverOptions) { o.Workers = 1 }))
	started, release := h.fake.Block()
	defer release()

	a := h.submit(h.request(1000, 100))
	<-started
	h.waitState(a, types.JobProving)

	b := h.submit(h.request(1001, 100))
	h.waitState(b, types.JobQueued)

	require.NoError(t, h.orch.Cancel(b))
	_, err := h.wait(b)
	requireKind(t, types.KindCancelled, err)
	require.Equal(t, types.JobCancelled, h.status(b).State)
	require.NoError(t, h.orch.Cancel(b), "重复取消无副作用")

	// 证明已开始
	err = h.orch.Cancel(a)
	require.ErrorIs(t, err, ErrTooLateToCancel)

	err = h.orch.Cancel("missing")
	requireKind(t, types.KindInvalidRequest, err)
	require.ErrorIs(t, err, ErrRequestNotFound)

	release()
	_, err = h.wait(a)
	require.NoError(t, err)
	require.EqualValues(t, 1, h.fake.ProveCalls.Load())

	err = h.orch.Cancel(a)
	requireKind(t, types.KindInvalidRequest, err)
}

func TestOrchestrator_CancelDuringEvidence(t *testing.T) {
	entered := make(chan struct{}, 1)
	slow := collector.Func(func(ctx context.Context, _ types.Anchor, _ types.EventDescriptor) (*types.Evidence, error) {
		entered <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	h := newHarness(t, withCollector(slow))

	id := h.submit(h.newRequest(1000, 100))
	<-entered
	require.NoError(t, h.orch.Cancel(id))
	_, err := h.wait(id)
	requireKind(t, types.KindCancelled, err)
	require.EqualValues(t, 0, h.fake.ProveCalls.Load())
}

func TestOrchestrator_Stop(t *testing.T) {
	h := newHarness(t, withOptions(func(o *prover.ProverOptions) { o.Workers = 1 }))
	started, release := h.fake.Block()
	defer release()

	a := h.submit(h.request(1000, 100))
	<-started
	b := h.submit(h.request(1001, 100))
	h.waitState(b, types.JobQueued)

	stopped := make(chan error, 1)
	go func() { stopped <- h.orch.Stop(context.Background()) }()

	// 排队任务立即取消，进行中的证明继续完成
	_, err := h.wait(b)
	requireKind(t, types.KindCancelled, err)

	release()
	_, err = h.wait(a)
	require.NoError(t, err)
	require.NoError(t, <-stopped)

	_, err = h.orch.Submit(context.Background(), h.request(1002, 100))
	require.ErrorIs(t, err, ErrNotRunning)
}

// TestOrchestrator_EnqueueAfterStop 见证构建完成时编排器已停止，请求以 Cancelled 结束
func TestOrchestrator_EnqueueAfterStop(t *testing.T) {
	gate := newGatedCache()
	h := newHarness(t, withCacheWrapper(gate.wrap))

	gate.armed.Store(true)
	id := h.submit(h.request(1000, 100))
	<-gate.missed

	stopped := make(chan error, 1)
	go func() { stopped <- h.orch.Stop(context.Background()) }()
	require.Eventually(t, func() bool { return h.orch.baseCtx.Err() != nil }, waitFor, tick)
	close(gate.release)

	_, err := h.wait(id)
	requireKind(t, types.KindCancelled, err)
	require.NoError(t, <-stopped)
	require.Equal(t, types.JobCancelled, h.status(id).State)
	require.Equal(t, 0, h.orch.Stats().InflightJobs)
	require.EqualValues(t, 0, h.fake.ProveCalls.Load())
}

// ============================================================================
// 输入校验与证据错误
// ============================================================================

// TestOrchestrator_InlineEvidence 内嵌证据只用于本次请求，不进入证据源，构建后即释放
func TestOrchestrator_InlineEvidence(t *testing.T) {
	h := newHarness(t)
	req := h.newRequest(1000, 100)
	req.Evidence = testutil.MerkleEvidence(req.Event, 1, 4)

	id := h.submit(req)
	_, err := h.wait(id)
	require.NoError(t, err)
	require.NotNil(t, req.Evidence, "调用方的请求不被修改")
	require.Equal(t, 0, h.collector.Len())

	r := h.orch.lookup(id)
	require.NotNil(t, r)
	require.Nil(t, r.evidence)
	require.Nil(t, r.req.Evidence)

	// 未内嵌证据的相同请求仍走证据源
	_, err = h.orch.Prove(context.Background(), h.newRequest(1001, 100))
	requireKind(t, types.KindSourceUnavailable, err)
}

func TestOrchestrator_InvalidRequests(t *testing.T) {
	h := newHarness(t, withOptions(func(o *prover.ProverOptions) { o.SupportedChains = []uint64{testChain} }))

	tests := []struct {
		name   string
		mutate func(r *types.ProofRequest)
	}{
		{"unknown chain", func(r *types.ProofRequest) {
			r.ChainID = 8
			r.Anchor.ChainID = 8
		}},
		{"anchor chain mismatch", func(r *types.ProofRequest) { r.Anchor.ChainID = 9 }},
		{"empty anchor hash", func(r *types.ProofRequest) { r.Anchor.BlockHash = common.Hash{} }},
		{"unknown backend", func(r *types.ProofRequest) { r.BackendID = "stark-v9" }},
		{"empty backend", func(r *types.ProofRequest) { r.BackendID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := h.request(1000, 100)
			tt.mutate(req)
			_, err := h.orch.Submit(context.Background(), req)
			requireKind(t, types.KindInvalidRequest, err)
		})
	}

	_, err := h.orch.Submit(context.Background(), nil)
	requireKind(t, types.KindInvalidRequest, err)

	_, err = h.orch.Wait(context.Background(), "missing")
	requireKind(t, types.KindInvalidRequest, err)

	require.EqualValues(t, 0, h.fake.ProveCalls.Load())
	require.Equal(t, 0, h.orch.Stats().ActiveRequests)
}

func TestOrchestrator_EvidenceFailures(t *testing.T) {
	h := newHarness(t)

	t.Run("not found", func(t *testing.T) {
		_, err := h.orch.Prove(context.Background(), h.newRequest(1000, 100))
		requireKind(t, types.KindSourceUnavailable, err)
	})

	t.Run("flipped leaf", func(t *testing.T) {
		req := h.newRequest(1001, 100)
		evidence := testutil.MerkleEvidence(req.Event, 1, 4)
		evidence.MerkleBranch.Leaf[0] ^= 0x01
		require.NoError(t, h.collector.Add(req.Anchor, req.Event, evidence))

		_, err := h.orch.Prove(context.Background(), req)
		requireKind(t, types.KindInvalidEvidence, err)
	})

	require.EqualValues(t, 0, h.fake.ProveCalls.Load())
}

func TestOrchestrator_EvidenceTimeout(t *testing.T) {
	blocking := collector.Func(func(ctx context.Context, _ types.Anchor, _ types.EventDescriptor) (*types.Evidence, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	t.Run("stage timeout", func(t *testing.T) {
		h := newHarness(t, withCollector(blocking), withOptions(func(o *prover.ProverOptions) {
			o.EvidenceTimeout = 50 * time.Millisecond
		}))
		_, err := h.orch.Prove(context.Background(), h.newRequest(1000, 100))
		requireKind(t, types.KindTimeout, err)
	})

	t.Run("request deadline", func(t *testing.T) {
		h := newHarness(t, withCollector(blocking), withOptions(func(o *prover.ProverOptions) {
			o.EvidenceTimeout = time.Minute
		}))
		req := h.newRequest(1000, 100)
		req.Deadline = time.Now().Add(50 * time.Millisecond)
		_, err := h.orch.Prove(context.Background(), req)
		requireKind(t, types.KindDeadlineExceeded, err)
	})

	t.Run("collector error", func(t *testing.T) {
		down := collector.Func(func(context.Context, types.Anchor, types.EventDescriptor) (*types.Evidence, error) {
			return nil, errors.New("rpc unreachable")
		})
		h := newHarness(t, withCollector(down))
		_, err := h.orch.Prove(context.Background(), h.newRequest(1000, 100))
		requireKind(t, types.KindSourceUnavailable, err)
	})
}

func TestOrchestrator_WaitContext(t *testing.T) {
	h := newHarness(t)
	_, release := h.fake.Block()
	defer release()

	id := h.submit(h.request(1000, 100))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.orch.Wait(ctx, id)
	requireKind(t, types.KindTimeout, err)

	// 调用方放弃等待不影响请求本身
	release()
	_, err = h.wait(id)
	require.NoError(t, err)
}

// ============================================================================
// 真实后端
// ============================================================================

// TestOrchestrator_PlonkEndToEnd 链 7、高度 1000 的转账事件经 plonk-v1 证明
func TestOrchestrator_PlonkEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("plonk setup is slow")
	}
	ctx := context.Background()
	plonk := gnark.NewPlonk()
	h := newHarness(t, withPlugins(plonk))

	event := testutil.TransferEvent(common.HexToHash("0xabc"), 100)
	anchor := testutil.TestAnchor(7, 1000)
	require.NoError(t, h.collector.Add(anchor, event, testutil.MerkleEvidence(event, 1, 4)))
	req := &types.ProofRequest{ChainID: 7, Anchor: anchor, Event: event, BackendID: gnark.PlonkID}

	id := h.submit(req)
	artifact, err := h.wait(id)
	require.NoError(t, err)
	require.Equal(t, types.JobCompleted, h.status(id).State)
	require.Equal(t, gnark.PlonkID, artifact.Backend.ID)
	require.NotEqual(t, common.Hash{}, artifact.Metadata.CircuitHash)

	// 独立验证
	pair, err := h.keys.Load(ctx, plonk)
	require.NoError(t, err)
	proof, err := plonk.DeserializeProof(artifact.ProofBytes)
	require.NoError(t, err)
	ok, err := plonk.Verify(proof, artifact.PublicInputs, pair.VK)
	require.NoError(t, err)
	require.True(t, ok)

	// 第二次命中缓存
	id2 := h.submit(req)
	cached, err := h.wait(id2)
	require.NoError(t, err)
	require.True(t, h.status(id2).CacheHit)
	require.Equal(t, artifact, cached)

	// 叶子翻转一个字节
	tampered := testutil.TransferEvent(common.HexToHash("0xabd"), 100)
	evidence := testutil.MerkleEvidence(tampered, 1, 4)
	evidence.MerkleBranch.Leaf[0] ^= 0x01
	require.NoError(t, h.collector.Add(anchor, tampered, evidence))
	_, err = h.orch.Prove(ctx, &types.ProofRequest{ChainID: 7, Anchor: anchor, Event: tampered, BackendID: gnark.PlonkID})
	requireKind(t, types.KindInvalidEvidence, err)
}

func TestOrchestrator_RetireFinished(t *testing.T) {
	h := newHarness(t)
	done := h.submit(h.request(1000, 100))
	_, err := h.wait(done)
	require.NoError(t, err)

	started, release := h.fake.Block()
	defer release()
	running := h.submit(h.request(1001, 100))
	<-started

	require.Equal(t, 1, h.orch.retire(time.Now().Add(time.Second)))
	_, err = h.orch.Status(done)
	require.ErrorIs(t, err, ErrRequestNotFound)
	require.Equal(t, types.JobProving, h.status(running).State)
}
