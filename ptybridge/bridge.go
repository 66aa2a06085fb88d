// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ptybridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/term"
)

const readBufferSize = 4096

// InputFilter sees every chunk of user input before the shell does and
// returns what the shell should receive. Returning nil withholds the
// whole chunk.
type InputFilter interface {
	FilterInput(data []byte) []byte
}

// Observer sees the shell's output and window size changes, in the
// order the bridge handles them.
type Observer interface {
	Output(data []byte)
	Resize(size Size)
}

// Config wires a Bridge to its terminal and its shell.
type Config struct {
	// Master is the pseudo-terminal master returned by Spawn. The
	// bridge closes it when Run returns.
	Master *os.File

	// Stdin is the user's terminal. It is switched to raw mode for the
	// duration of Run when it is a terminal.
	Stdin *os.File

	// Stdout receives the shell's output unchanged.
	Stdout io.Writer

	// Filter and Observer are optional.
	Filter   InputFilter
	Observer Observer

	Logger *slog.Logger
}

// Bridge relays bytes between the user's terminal and a shell on a
// pseudo-terminal.
type Bridge struct {
	config Config
	inject chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// New returns a bridge for config. Call Run to start relaying.
func New(config Config) *Bridge {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Bridge{
		config: config,
		inject: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
}

// Inject queues data for the shell as if the user had typed it. It is
// safe to call from any goroutine; after Run returns it drops data.
func (b *Bridge) Inject(data []byte) {
	if len(data) == 0 {
		return
	}
	copied := append([]byte(nil), data...)
	select {
	case b.inject <- copied:
	case <-b.done:
	}
}

// Done is closed when Run returns.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

type chunk struct {
	data []byte
	err  error
}

// Run relays until the shell exits, which returns nil, or until ctx is
// cancelled or an I/O error occurs. The user's terminal mode is
// restored on every return path.
//
// One loop serves user input, shell output, injected writes and window
// size changes. Each turn gives one pending chunk of user input
// priority before choosing fairly among every ready source. Writes to
// the shell go through a queue drained by a single writer goroutine,
// so a shell that stops reading never stops its output from being
// relayed.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.closeOnce.Do(func() { close(b.done) })
	defer b.config.Master.Close()

	stdinFd := int(b.config.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		oldState, err := term.MakeRaw(stdinFd)
		if err != nil {
			return fmt.Errorf("setting terminal raw mode: %w", err)
		}
		defer term.Restore(stdinFd, oldState)
	}

	resize := make(chan os.Signal, 1)
	signal.Notify(resize, syscall.SIGWINCH)
	defer signal.Stop(resize)

	writes := make(chan []byte)
	writeErr := make(chan error, 1)
	go b.writeLoop(writes, writeErr)

	stdin := readChunks(b.config.Stdin, b.done)
	output := readChunks(b.config.Master, b.done)

	var queue shellQueue
	for {
		// User input first, one chunk per turn.
		if !queue.full() {
			select {
			case message := <-stdin:
				b.handleInput(message, &stdin, &queue)
			default:
			}
		}

		// Stop taking new input while the shell is behind; output keeps
		// flowing, and the shell catches up by reading.
		input, inject := stdin, b.inject
		if queue.full() {
			input, inject = nil, nil
		}
		var send chan<- []byte
		if !queue.empty() {
			send = writes
		}

		select {
		case message := <-input:
			b.handleInput(message, &stdin, &queue)
		case send <- queue.front():
			queue.pop()
		case err := <-writeErr:
			return err
		case message := <-output:
			if len(message.data) > 0 {
				if _, err := b.config.Stdout.Write(message.data); err != nil {
					return fmt.Errorf("writing shell output: %w", err)
				}
				if b.config.Observer != nil {
					b.config.Observer.Output(message.data)
				}
			}
			if message.err != nil {
				if shellExited(message.err) {
					return nil
				}
				return fmt.Errorf("reading from shell: %w", message.err)
			}
		case data := <-inject:
			queue.push(data)
		case <-resize:
			b.resize(stdinFd)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleInput queues one chunk of user input for the shell. End of
// input stops the input reader without ending the session.
func (b *Bridge) handleInput(message chunk, stdin *<-chan chunk, queue *shellQueue) {
	if len(message.data) > 0 {
		data := message.data
		if b.config.Filter != nil {
			data = b.config.Filter.FilterInput(data)
		}
		queue.push(data)
	}
	if message.err != nil {
		if !errors.Is(message.err, io.EOF) {
			b.config.Logger.Warn("stopped reading user input", "error", message.err)
		}
		*stdin = nil
	}
}

// writeLoop owns the write side of the master. It stops at the first
// write error, reporting it on errs, or when Run returns; closing the
// master unblocks a write in progress.
func (b *Bridge) writeLoop(writes <-chan []byte, errs chan<- error) {
	for {
		select {
		case data := <-writes:
			if _, err := b.config.Master.Write(data); err != nil {
				errs <- fmt.Errorf("writing to shell: %w", err)
				return
			}
		case <-b.done:
			return
		}
	}
}

// maxQueuedChunks bounds the bytes held for a shell that is not reading
// its input, at the cost of no longer reading the user's terminal.
const maxQueuedChunks = 64

// shellQueue holds chunks bound for the shell in arrival order.
type shellQueue struct {
	chunks [][]byte
}

func (q *shellQueue) push(data []byte) {
	if len(data) > 0 {
		q.chunks = append(q.chunks, data)
	}
}

func (q *shellQueue) empty() bool { return len(q.chunks) == 0 }

func (q *shellQueue) full() bool { return len(q.chunks) >= maxQueuedChunks }

// front returns the oldest chunk, or nil when the queue is empty.
func (q *shellQueue) front() []byte {
	if len(q.chunks) == 0 {
		return nil
	}
	return q.chunks[0]
}

func (q *shellQueue) pop() {
	q.chunks[0] = nil
	q.chunks = q.chunks[1:]
}

func (b *Bridge) resize(stdinFd int) {
	size, err := TerminalSize(stdinFd)
	if err != nil {
		b.config.Logger.Debug("ignoring window change", "error", err)
		return
	}
	if err := setSize(b.config.Master, size); err != nil {
		b.config.Logger.Warn("resizing pseudo-terminal", "error", err)
		return
	}
	if b.config.Observer != nil {
		b.config.Observer.Resize(size)
	}
}

// readChunks reads r until it fails, sending each chunk with the read
// error that ended it, or until done is closed.
func readChunks(r io.Reader, done <-chan struct{}) <-chan chunk {
	chunks := make(chan chunk, 16)
	go func() {
		for {
			buffer := make([]byte, readBufferSize)
			n, err := r.Read(buffer)
			if n > 0 || err != nil {
				select {
				case chunks <- chunk{data: buffer[:n], err: err}:
				case <-done:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return chunks
}

// shellExited reports whether a master read error means the shell side
// closed: EOF on some systems, EIO on Linux.
func shellExited(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, syscall.EIO) || errors.Is(err, os.ErrClosed)
}
