package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/audio"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/metrics"
)

// seqHeaderSize is the size of the big-endian sequence number prefixing each datagram.
const seqHeaderSize = 4

// UDPConfig configures a UDP capture source.
type UDPConfig struct {
	Address    string
	Format     Format
	FrameMs    int
	BufferSize int
	MaxGap     uint32
	QueueSize  int
}

// UDP receives datagrams of the form [uint32 BE sequence][pcm], restores
// their order and slices the stream into frames.
type UDP struct {
	conn       *net.UDPConn
	cfg        UDPConfig
	frameBytes int
	reorder    *ReorderBuffer
	logger     *slog.Logger
	metrics    *metrics.Metrics

	frames  chan []byte
	partial []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once

	// Statistics
	packetsReceived uint64
	parseErrors     uint64
	framesDropped   uint64
	lastLost        uint32
	mu              sync.RWMutex
}

// UDPStatistics represents UDP source statistics
type UDPStatistics struct {
	PacketsReceived uint64       `json:"packets_received"`
	ParseErrors     uint64       `json:"parse_errors"`
	FramesDropped   uint64       `json:"frames_dropped"`
	QueueSize       int          `json:"queue_size"`
	Reorder         ReorderStats `json:"reorder"`
}

// ListenUDP binds the socket and starts the receive loop.
func ListenUDP(cfg UDPConfig, logger *slog.Logger, m *metrics.Metrics) (*UDP, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 65536
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	frameBytes := audio.FrameBytes(cfg.Format.SampleRate, cfg.Format.Channels, cfg.FrameMs)
	if frameBytes <= 0 {
		return nil, fmt.Errorf("frame duration %dms yields an empty frame at %s", cfg.FrameMs, cfg.Format)
	}

	addr, err := net.ResolveUDPAddr("udp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve UDP address: %v", ErrNoDevice, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to listen on UDP: %v", ErrNoDevice, err)
	}

	if err := conn.SetReadBuffer(cfg.BufferSize); err != nil {
		logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", cfg.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	u := &UDP{
		conn:       conn,
		cfg:        cfg,
		frameBytes: frameBytes,
		reorder:    NewReorderBuffer(cfg.MaxGap),
		logger:     logger,
		metrics:    m,
		frames:     make(chan []byte, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	logger.Info("UDP capture started",
		slog.String("address", conn.LocalAddr().String()),
		slog.String("format", cfg.Format.String()),
		slog.Int("frame_ms", cfg.FrameMs),
	)

	u.wg.Add(1)
	go u.receiveLoop()
	return u, nil
}

// LocalAddr returns the bound address.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// Read returns the next frame, blocking until one is available. It returns
// io.EOF once the source is closed and drained.
func (u *UDP) Read(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-u.frames:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Format implements Source.
func (u *UDP) Format() Format {
	return u.cfg.Format
}

// Close stops the receive loop and closes the socket.
func (u *UDP) Close() error {
	var err error
	u.closeOnce.Do(func() {
		u.cancel()
		err = u.conn.Close()
		u.wg.Wait()

		stats := u.GetStatistics()
		u.logger.Info("UDP capture stopped",
			slog.Uint64("packets_received", stats.PacketsReceived),
			slog.Uint64("parse_errors", stats.ParseErrors),
			slog.Uint64("frames_dropped", stats.FramesDropped),
			slog.Uint64("packets_lost", uint64(stats.Reorder.LostPackets)),
		)
	})
	return err
}

// receiveLoop is the main packet receiving loop
func (u *UDP) receiveLoop() {
	defer u.wg.Done()
	defer close(u.frames)

	buffer := make([]byte, u.cfg.BufferSize)

	for {
		select {
		case <-u.ctx.Done():
			return
		default:
		}

		// Set read deadline to check for context cancellation periodically
		if err := u.conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			if u.ctx.Err() != nil {
				return
			}
			u.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := u.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if u.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			u.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
			continue
		}

		u.mu.Lock()
		u.packetsReceived++
		u.mu.Unlock()

		u.handlePacket(buffer[:n], remoteAddr)
	}
}

// handlePacket parses one datagram and emits every complete frame it yields.
func (u *UDP) handlePacket(packet []byte, remoteAddr *net.UDPAddr) {
	seq, payload, err := ParseDatagram(packet)
	if err != nil {
		u.mu.Lock()
		u.parseErrors++
		u.mu.Unlock()
		u.logger.Error("Failed to parse packet",
			slog.String("remote_addr", remoteAddr.String()),
			slog.Int("packet_size", len(packet)),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := u.reorder.Add(seq, payload); err != nil {
		u.logger.Debug("Packet rejected by reorder buffer",
			slog.Uint64("sequence", uint64(seq)),
			slog.String("error", err.Error()),
		)
		return
	}

	stats := u.reorder.GetStats()
	u.mu.Lock()
	lost := int(stats.LostPackets - u.lastLost)
	u.lastLost = stats.LostPackets
	u.mu.Unlock()
	u.metrics.RecordPacketsLost(lost)

	u.partial = append(u.partial, u.reorder.Drain()...)
	for len(u.partial) >= u.frameBytes {
		frame := make([]byte, u.frameBytes)
		copy(frame, u.partial[:u.frameBytes])
		u.partial = u.partial[u.frameBytes:]

		select {
		case u.frames <- frame:
		default:
			u.mu.Lock()
			u.framesDropped++
			u.mu.Unlock()
			u.logger.Warn("Frame queue full, dropping frame", slog.Int("frame_size", len(frame)))
		}
	}
}

// ParseDatagram splits a datagram into its sequence number and PCM payload.
func ParseDatagram(packet []byte) (uint32, []byte, error) {
	if len(packet) <= seqHeaderSize {
		return 0, nil, fmt.Errorf("packet too short: %d bytes", len(packet))
	}
	payload := packet[seqHeaderSize:]
	if len(payload)%audio.BytesPerSample != 0 {
		return 0, nil, fmt.Errorf("audio data length must be even (got %d bytes)", len(payload))
	}
	return binary.BigEndian.Uint32(packet[:seqHeaderSize]), payload, nil
}

// EncodeDatagram builds a datagram for seq and pcm.
func EncodeDatagram(seq uint32, pcm []byte) []byte {
	out := make([]byte, seqHeaderSize+len(pcm))
	binary.BigEndian.PutUint32(out, seq)
	copy(out[seqHeaderSize:], pcm)
	return out
}

// GetStatistics returns current source statistics
func (u *UDP) GetStatistics() UDPStatistics {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return UDPStatistics{
		PacketsReceived: u.packetsReceived,
		ParseErrors:     u.parseErrors,
		FramesDropped:   u.framesDropped,
		QueueSize:       len(u.frames),
		Reorder:         u.reorder.GetStats(),
	}
}
