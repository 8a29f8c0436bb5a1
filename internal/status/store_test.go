package status_test

import (
	"sync"
	"testing"

	"github.com/srg/podwatch/internal/adapter"
	"github.com/srg/podwatch/internal/protocol"
	"github.com/srg/podwatch/internal/status"
	suitelib "github.com/stretchr/testify/suite"
)

type StoreTestSuite struct {
	suitelib.Suite

	store *status.Store
}

func (suite *StoreTestSuite) SetupTest() {
	suite.store = status.NewStore(nil)
}

func (suite *StoreTestSuite) TearDownTest() {
	suite.store.Close()
}

func (suite *StoreTestSuite) TestInitialSnapshot() {
	snap := suite.store.Snapshot()

	suite.Equal(protocol.Unknown(), snap.Battery)
	suite.False(snap.Scanning)
	suite.Equal(adapter.StateUnknown, snap.Adapter)
}

func (suite *StoreTestSuite) TestSettersReplaceWholesale() {
	first := protocol.BatteryStatus{LeftPod: 70, RightPod: 50, CaseBattery: 100, LeftCharging: true}
	second := protocol.BatteryStatus{LeftPod: 80, RightPod: protocol.LevelUnavailable, CaseBattery: protocol.LevelUnavailable}

	suite.store.SetBattery(first)
	suite.Equal(first, suite.store.Battery())

	// Last write wins; no field-level merging with the previous value.
	suite.store.SetBattery(second)
	suite.Equal(second, suite.store.Battery())

	suite.store.SetScanning(true)
	suite.True(suite.store.Scanning())

	suite.store.SetAdapterState(adapter.StateOn)
	suite.Equal(adapter.StateOn, suite.store.AdapterState())
}

func (suite *StoreTestSuite) TestSubscribeReceivesCurrentSnapshotImmediately() {
	suite.store.SetScanning(true)

	var got []status.Snapshot
	cancel := suite.store.Subscribe(func(snap status.Snapshot) {
		got = append(got, snap)
	})
	defer cancel()

	suite.Require().Len(got, 1)
	suite.True(got[0].Scanning)
}

func (suite *StoreTestSuite) TestEveryChangeIsBroadcast() {
	var mu sync.Mutex
	var got []status.Snapshot
	cancel := suite.store.Subscribe(func(snap status.Snapshot) {
		mu.Lock()
		got = append(got, snap)
		mu.Unlock()
	})
	defer cancel()

	battery := protocol.BatteryStatus{LeftPod: 50, RightPod: 50, CaseBattery: 90}
	suite.store.SetBattery(battery)
	suite.store.SetScanning(true)
	suite.store.SetAdapterState(adapter.StateOn)

	mu.Lock()
	defer mu.Unlock()
	suite.Require().Len(got, 4) // initial + three changes
	suite.Equal(battery, got[1].Battery)
	suite.True(got[2].Scanning)
	suite.Equal(adapter.StateOn, got[3].Adapter)
	// Later snapshots still carry the earlier fields.
	suite.Equal(battery, got[3].Battery)
	suite.True(got[3].Scanning)
}

func (suite *StoreTestSuite) TestListenersNotifiedInRegistrationOrder() {
	var order []string
	suite.store.Subscribe(func(status.Snapshot) { order = append(order, "a") })
	suite.store.Subscribe(func(status.Snapshot) { order = append(order, "b") })
	suite.store.Subscribe(func(status.Snapshot) { order = append(order, "c") })

	order = order[:0] // drop the initial-snapshot calls
	suite.store.SetScanning(true)

	suite.Equal([]string{"a", "b", "c"}, order)
}

func (suite *StoreTestSuite) TestCancelStopsNotifications() {
	calls := 0
	cancel := suite.store.Subscribe(func(status.Snapshot) { calls++ })
	suite.Equal(1, calls)

	cancel()
	cancel() // safe to call twice

	suite.store.SetScanning(true)
	suite.Equal(1, calls)
}

func (suite *StoreTestSuite) TestCloseReleasesSubscribersAndDropsWrites() {
	calls := 0
	suite.store.Subscribe(func(status.Snapshot) { calls++ })

	suite.store.SetAdapterState(adapter.StateOn)
	suite.Equal(2, calls)

	suite.store.Close()
	suite.store.SetAdapterState(adapter.StateOff)
	suite.Equal(2, calls)

	// Reads still serve the last value from before Close.
	suite.Equal(adapter.StateOn, suite.store.AdapterState())

	// Subscribing after Close is a no-op.
	cancel := suite.store.Subscribe(func(status.Snapshot) { calls++ })
	cancel()
	suite.Equal(2, calls)
}

func (suite *StoreTestSuite) TestConcurrentWritersAndReaders() {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		level := (i % 11) * 10
		go func(level int) {
			defer wg.Done()
			suite.store.SetBattery(protocol.BatteryStatus{LeftPod: level, RightPod: level, CaseBattery: level})
		}(level)
		go func() {
			defer wg.Done()
			b := suite.store.Battery()
			// A read must always see one writer's complete value.
			suite.Equal(b.LeftPod, b.RightPod)
			suite.Equal(b.LeftPod, b.CaseBattery)
		}()
	}
	wg.Wait()
}

func TestStoreTestSuite(t *testing.T) {
	suitelib.Run(t, new(StoreTestSuite))
}
