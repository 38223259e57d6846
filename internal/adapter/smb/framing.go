package smb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/marmos91/dittosmb/pkg/bufpool"
)

// NetBIOS session service message types [RFC 1002] 4.3.1.
const (
	nbSessionMessage   = 0x00
	nbSessionKeepAlive = 0x85

	nbHeaderSize = 4

	// minFrameSize is the protocol marker.
	minFrameSize = 4
)

var (
	ErrFrameTooLarge      = errors.New("SMB frame too large")
	ErrFrameTooSmall      = errors.New("SMB frame too small")
	ErrUnsupportedNetBIOS = errors.New("unsupported NetBIOS message type")

	// ErrIncompleteFrame means the buffer ends inside a frame.
	ErrIncompleteFrame = errors.New("incomplete NetBIOS frame")
)

// ReadFrame reads one NetBIOS-framed SMB message from conn. Keep-alive
// frames are skipped. The returned slice is owned by the caller.
//
// Parameters:
//   - maxMsgSize: upper bound on the payload, checked before allocating
//   - readTimeout: deadline for the whole frame (0 = none)
func ReadFrame(ctx context.Context, conn net.Conn, maxMsgSize int, readTimeout time.Duration) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if readTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
	}

	// Format: 1 byte type + 3 bytes length (big-endian)
	var nb [nbHeaderSize]byte
	var msgLen int
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(conn, nb[:]); err != nil {
			return nil, err
		}
		switch nb[0] {
		case nbSessionMessage:
			msgLen = int(nb[1])<<16 | int(nb[2])<<8 | int(nb[3])
		case nbSessionKeepAlive:
			continue
		default:
			return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedNetBIOS, nb[0])
		}
		break
	}

	if msgLen > maxMsgSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, msgLen, maxMsgSize)
	}
	if msgLen < minFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooSmall, msgLen)
	}

	message := make([]byte, msgLen)
	if _, err := io.ReadFull(conn, message); err != nil {
		return nil, fmt.Errorf("read SMB message: %w", err)
	}
	return message, nil
}

// SplitFrame takes the first NetBIOS session message off buf, for callers
// that hold a byte stream rather than a connection. consumed covers the
// header; a keep-alive yields a nil payload.
func SplitFrame(buf []byte, maxMsgSize int) (payload []byte, consumed int, err error) {
	if len(buf) < nbHeaderSize {
		return nil, 0, ErrIncompleteFrame
	}
	switch buf[0] {
	case nbSessionKeepAlive:
		return nil, nbHeaderSize, nil
	case nbSessionMessage:
	default:
		return nil, 0, fmt.Errorf("%w: 0x%02x", ErrUnsupportedNetBIOS, buf[0])
	}

	msgLen := int(buf[1])<<16 | int(buf[2])<<8 | int(buf[3])
	if msgLen > maxMsgSize {
		return nil, 0, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, msgLen, maxMsgSize)
	}
	if msgLen < minFrameSize {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrFrameTooSmall, msgLen)
	}
	if len(buf) < nbHeaderSize+msgLen {
		return nil, 0, ErrIncompleteFrame
	}
	return buf[nbHeaderSize : nbHeaderSize+msgLen], nbHeaderSize + msgLen, nil
}

// WriteNetBIOSFrame wraps payload in a NetBIOS session header and writes it
// as one Write call. It is the single point for wire writes.
func WriteNetBIOSFrame(conn net.Conn, writeMu *LockedWriter, writeTimeout time.Duration, payload []byte) error {
	if len(payload) > 0xFFFFFF {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	writeMu.Lock()
	defer writeMu.Unlock()

	if writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	n := len(payload)
	frame := bufpool.Get(nbHeaderSize + n)
	defer bufpool.Put(frame)

	frame[0] = nbSessionMessage
	frame[1] = byte(n >> 16)
	frame[2] = byte(n >> 8)
	frame[3] = byte(n)
	copy(frame[nbHeaderSize:], payload)

	if _, err := conn.Write(frame[:nbHeaderSize+n]); err != nil {
		return fmt.Errorf("write SMB message: %w", err)
	}
	return nil
}

// WriteKeepAlive sends a NetBIOS keep-alive frame.
func WriteKeepAlive(conn net.Conn, writeMu *LockedWriter) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_, err := conn.Write([]byte{nbSessionKeepAlive, 0, 0, 0})
	return err
}
