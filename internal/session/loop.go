package session

import (
	"context"
	"fmt"
	"time"
)

// loop is the scene goroutine: render ticks and posted closures, one at a time.
func (s *Session) loop(r *run) {
	defer close(r.done)

	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.RefreshHz))
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		case task := <-r.tasks:
			task()
		}
	}
}

// tick advances the clock, animations and effects by one frame and renders.
func (s *Session) tick() {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			s.metrics.RenderPanics.Inc()
			s.logger.Error("render tick panicked", "panic", p)
		}
		s.metrics.RenderDuration.Observe(time.Since(start).Seconds())
		s.frameDone()
	}()

	dt := s.clock.Delta()
	s.blender.Update(dt)
	s.stage.Update(dt)
	s.stage.SetActorLabel(s.blender.Active())
	if err := s.renderScene(); err != nil {
		s.logger.Warn("render failed", "err", err)
	}
}

func (s *Session) renderScene() error {
	return s.renderer.Render(s.stage.Graph, s.stage.Camera)
}

// frameDone wakes every NextFrame waiter.
func (s *Session) frameDone() {
	s.frameMu.Lock()
	close(s.frameCh)
	s.frameCh = make(chan struct{})
	s.frameMu.Unlock()
}

// NextFrame blocks until the next render tick completes or ctx is done.
func (s *Session) NextFrame(ctx context.Context) error {
	s.frameMu.Lock()
	ch := s.frameCh
	s.frameMu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the scene goroutine and waits for it. When the session is
// stopped fn runs on the calling goroutine under the idle lock instead.
// A panic in fn is recovered and returned as an error.
func (s *Session) Do(ctx context.Context, fn func()) error {
	return s.exec(ctx, fn)
}

func (s *Session) exec(ctx context.Context, fn func()) error {
	s.idleMu.Lock()
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		defer s.idleMu.Unlock()
		return s.guard(fn)
	}
	s.idleMu.Unlock()

	var err error
	done := make(chan struct{})
	task := func() {
		defer close(done)
		err = s.guard(fn)
	}

	select {
	case r.tasks <- task:
	case <-r.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return err
}

func (s *Session) guard(fn func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("scene task panicked", "panic", p)
			err = fmt.Errorf("scene task panic: %v", p)
		}
	}()
	fn()
	return nil
}
