package devbackend

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/protocol/wire"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/pkg/logger"
	"github.com/creack/pty"
)

// shellSession is one PTY-backed shell owned by the dev backend.
type shellSession struct {
	id   string
	cmd  *exec.Cmd
	ptmx *os.File

	mu     sync.Mutex
	seq    int64
	killed bool
}

func (s *shellSession) nextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.seq
	s.seq++
	return seq
}

func (s *shellSession) kill() {
	s.mu.Lock()
	if s.killed {
		s.mu.Unlock()
		return
	}
	s.killed = true
	s.mu.Unlock()

	_ = s.ptmx.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

func (b *Backend) handleTerminalSpawn(causality string, intent wire.TerminalSpawn) {
	b.mu.Lock()
	if _, exists := b.sessions[intent.TerminalID]; exists {
		b.mu.Unlock()
		// Idempotent: re-confirm the running session.
		b.emit(causality, wire.TerminalSpawned{TerminalID: intent.TerminalID})
		return
	}
	b.mu.Unlock()

	cmd := exec.Command(b.cfg.Shell, "-i")
	cmd.Dir = b.cfg.Root
	if intent.Cwd != "" {
		if resolved, err := b.resolve(intent.Cwd); err == nil {
			cmd.Dir = resolved
		}
	}
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.Start(cmd)
	if err != nil {
		b.fail(causality, wire.Internal{Message: fmt.Sprintf("failed to start shell: %v", err)})
		return
	}

	session := &shellSession{id: intent.TerminalID, cmd: cmd, ptmx: ptmx}
	b.mu.Lock()
	b.sessions[intent.TerminalID] = session
	b.mu.Unlock()

	logger.Infof("Spawned shell session %s (PID %d)", intent.TerminalID, cmd.Process.Pid)
	b.emit(causality, wire.TerminalSpawned{TerminalID: intent.TerminalID})
	go b.pumpOutput(session)
}

// pumpOutput copies PTY output into TerminalOutput events until the shell
// exits, then reports the exit.
func (b *Backend) pumpOutput(s *shellSession) {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			b.emit("", wire.TerminalOutput{
				TerminalID: s.id,
				Data:       string(buf[:n]),
				Seq:        s.nextSeq(),
			})
		}
		if err != nil {
			break
		}
	}

	err := s.cmd.Wait()
	exitCode := 0
	annotation := ""
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			annotation = err.Error()
		}
	}

	b.mu.Lock()
	delete(b.sessions, s.id)
	b.mu.Unlock()

	b.emit("", wire.TerminalOutput{TerminalID: s.id, Seq: s.nextSeq(), IsFinal: true})
	b.emit("", wire.TerminalExited{TerminalID: s.id, ExitCode: exitCode, Error: annotation})
	logger.Infof("Shell session %s exited with code %d", s.id, exitCode)
}

func (b *Backend) session(id string) *shellSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[id]
}

func (b *Backend) handleTerminalInput(intent wire.TerminalInput) error {
	s := b.session(intent.TerminalID)
	if s == nil {
		return fmt.Errorf("no such terminal session %s", intent.TerminalID)
	}
	_, err := s.ptmx.WriteString(intent.Data)
	return err
}

func (b *Backend) handleTerminalResize(intent wire.TerminalResize) {
	s := b.session(intent.TerminalID)
	if s == nil {
		return
	}
	_ = pty.Setsize(s.ptmx, &pty.Winsize{
		Cols: uint16(intent.Cols),
		Rows: uint16(intent.Rows),
	})
}

func (b *Backend) handleTerminalKill(intent wire.TerminalKill) {
	s := b.session(intent.TerminalID)
	if s == nil {
		return
	}
	s.kill()
	// The pump goroutine observes the PTY close and reports the exit; give
	// stubborn shells a hard deadline.
	go func() {
		time.Sleep(2 * time.Second)
		if b.session(intent.TerminalID) != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
	}()
}
