package driver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"periph.io/x/conn/v3/physic"
)

// fakeI2CBus implements periph.io/x/conn/v3/i2c.Bus for tests; it records
// every transaction in order and can be primed to fail N times before
// succeeding, to exercise the retry policy.
type fakeI2CBus struct {
	mu        sync.Mutex
	txs       [][]byte // recorded write payloads, in order
	failNext  int
	failEvery func(w []byte) bool
	regs      map[byte]byte
}

func newFakeI2CBus() *fakeI2CBus {
	return &fakeI2CBus{regs: make(map[byte]byte)}
}

func (f *fakeI2CBus) String() string { return "fake" }

func (f *fakeI2CBus) SetSpeed(freq physic.Frequency) error { return nil }

func (f *fakeI2CBus) Tx(addr uint16, w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), w...)
	f.txs = append(f.txs, cp)

	if f.failNext > 0 {
		f.failNext--
		return errors.New("simulated transient bus error")
	}
	if f.failEvery != nil && f.failEvery(w) {
		return errors.New("simulated bus error")
	}

	if len(w) >= 1 {
		reg := w[0]
		if len(w) > 1 {
			// write: reg + payload
			for i, b := range w[1:] {
				f.regs[reg+byte(i)] = b
			}
		} else if len(r) > 0 {
			// read: reg only, payload into r
			for i := range r {
				r[i] = f.regs[reg+byte(i)]
			}
		}
	}
	return nil
}

func (f *fakeI2CBus) Close() error { return nil }

func (f *fakeI2CBus) transactions() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.txs...)
}

func TestBusRetriesTransientErrors(t *testing.T) {
	fake := newFakeI2CBus()
	fake.failNext = 2 // fail twice, succeed on 3rd attempt
	log := zaptest.NewLogger(t)
	bus := NewBus(fake, 0x57, log)
	defer bus.Close(context.Background())

	_, err := bus.ReadReg(0x00, 1)
	require.NoError(t, err)
}

func TestBusGivesUpAfterMaxAttempts(t *testing.T) {
	fake := newFakeI2CBus()
	fake.failNext = 10
	log := zaptest.NewLogger(t)
	bus := NewBus(fake, 0x57, log)
	defer bus.Close(context.Background())

	_, err := bus.ReadReg(0x00, 1)
	require.Error(t, err)
	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, ErrBus, derr.Kind)
}

func TestBusDemotesToOfflineAfterThreeFailures(t *testing.T) {
	fake := newFakeI2CBus()
	fake.failNext = 100
	log := zaptest.NewLogger(t)
	bus := NewBus(fake, 0x57, log)
	defer bus.Close(context.Background())

	for i := 0; i < 3; i++ {
		_, _ = bus.ReadReg(0x00, 1)
	}
	assert.True(t, bus.Offline())
}

// S3 from spec §8: set_allow_charging true on pisugar3 must produce the
// bus trace W 0x0B 0x29, W 0x02 <ctl|0x40>, W 0x0B 0x00 with no
// interleaving from any other task.
func TestScenarioS3WriteProtectBracketOrdering(t *testing.T) {
	fake := newFakeI2CBus()
	fake.regs[reg3Control] = 0x80 // USB present, charge disabled
	log := zaptest.NewLogger(t)
	bus := NewBus(fake, 0x57, log)
	defer bus.Close(context.Background())

	dev := NewPiSugar3(bus, log, nil)
	require.NoError(t, dev.SetChargeEnable(true))

	txs := fake.transactions()
	require.Len(t, txs, 3)
	assert.Equal(t, []byte{reg3WriteProt, wpUnlockValue}, txs[0])
	assert.Equal(t, byte(reg3Control), txs[1][0])
	assert.Equal(t, byte(0x80|ctlBitChargeEnable), txs[1][1])
	assert.Equal(t, []byte{reg3WriteProt, wpLockValue}, txs[2])
}

func TestBusSerializesConcurrentCallers(t *testing.T) {
	fake := newFakeI2CBus()
	log := zaptest.NewLogger(t)
	bus := NewBus(fake, 0x57, log)
	defer bus.Close(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = bus.ReadReg(0x00, 1)
		}()
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for concurrent bus reads")
	}
}
