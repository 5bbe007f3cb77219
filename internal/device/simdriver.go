package device

import (
	"sync"
	"time"
)

// SimDriver is an in-memory stand-in for the vendor galvo driver, used by
// start_test runs and by the test suite. It honors the same Driver
// contract a real RTC-style card would: ResetListLevel starts a fresh
// buffer, commands accumulate in it, ExecuteList "runs" them instantly,
// and WaitForCompletion reports success immediately since there is no
// real device latency to wait out.
type SimDriver struct {
	mu          sync.Mutex
	opened      bool
	listLevel   uint32
	power       float64
	markSpeed   float64
	jumpSpeed   float64
	laserOn     bool
	commands    []SimCommand
	executedLog [][]SimCommand
}

// SimCommand records one queued instruction for inspection by tests.
type SimCommand struct {
	Kind    string // "jump", "mark", "delay"
	X, Y    int32
	DelayMS uint32
	Power   float64
	Mark    float64
	Jump    float64
}

func NewSimDriver() *SimDriver { return &SimDriver{} }

func (s *SimDriver) Open() error  { s.mu.Lock(); defer s.mu.Unlock(); s.opened = true; return nil }
func (s *SimDriver) Close() error { s.mu.Lock(); defer s.mu.Unlock(); s.opened = false; return nil }

func (s *SimDriver) ResetListLevel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listLevel = 0
	s.commands = nil
}

func (s *SimDriver) SetSegmentParameters(powerW, markSpeedMMPerS, jumpSpeedMMPerS float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.power, s.markSpeed, s.jumpSpeed = powerW, markSpeedMMPerS, jumpSpeedMMPerS
	return nil
}

func (s *SimDriver) Jump(x, y int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, SimCommand{Kind: "jump", X: x, Y: y, Jump: s.jumpSpeed})
	s.listLevel++
	return nil
}

func (s *SimDriver) Mark(x, y int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, SimCommand{Kind: "mark", X: x, Y: y, Power: s.power, Mark: s.markSpeed})
	s.listLevel++
	return nil
}

func (s *SimDriver) Delay(ms uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, SimCommand{Kind: "delay", DelayMS: ms})
	s.listLevel++
	return nil
}

func (s *SimDriver) CurrentListLevel() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLevel
}

func (s *SimDriver) ExecuteList() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executedLog = append(s.executedLog, s.commands)
	s.commands = nil
	s.listLevel = 0
	return nil
}

func (s *SimDriver) WaitForCompletion(timeout time.Duration) (bool, error) {
	return true, nil
}

func (s *SimDriver) DisableLaser() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.laserOn = false
	return nil
}

func (s *SimDriver) ResetError() error { return nil }

// ExecutedBatches returns every batch ExecuteList has flushed so far, for
// test assertions.
func (s *SimDriver) ExecutedBatches() [][]SimCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]SimCommand, len(s.executedLog))
	copy(out, s.executedLog)
	return out
}
