package wsrelay

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

// secureConn wraps a net.Conn with ChaCha20-Poly1305 encryption keyed
// by an X25519 handshake. Each direction gets its own AEAD, derived
// from the shared secret with a role label, rather than one AEAD
// shared by both directions: a yamux-multiplexed Peer has both sides
// writing concurrently on the same underlying connection, and reusing
// one key for both directions doubles the chance two frames ever pick
// the same (key, nonce) pair. Nonces are a per-direction monotonic
// counter instead of random bytes sent on the wire, since a counter
// that only ever increments is cheaper to generate, never needs
// framing of its own, and still can't repeat within a session's
// lifetime. Used only when the caller opts in via WithE2EE; plain
// wsConn/yamux streams never see this type.
type secureConn struct {
	net.Conn

	writeAEAD cipher.AEAD
	readAEAD  cipher.AEAD

	writeMu  sync.Mutex
	writeSeq uint64

	readMu  sync.Mutex
	readSeq uint64
	readBuf []byte
}

func newSecureConn(conn net.Conn, writeKey, readKey []byte) (*secureConn, error) {
	writeAEAD, err := chacha20poly1305.New(writeKey)
	if err != nil {
		return nil, fmt.Errorf("wsrelay: init write aead: %w", err)
	}
	readAEAD, err := chacha20poly1305.New(readKey)
	if err != nil {
		return nil, fmt.Errorf("wsrelay: init read aead: %w", err)
	}
	return &secureConn{Conn: conn, writeAEAD: writeAEAD, readAEAD: readAEAD}, nil
}

// seqNonce renders seq as a chacha20poly1305 nonce: the counter never
// needs to exceed 8 bytes for any session this relay will ever carry,
// so the high bytes stay zero.
func seqNonce(seq uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(nonce[chacha20poly1305.NonceSize-8:], seq)
	return nonce
}

func (s *secureConn) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	seq := s.writeSeq
	s.writeSeq++
	s.writeMu.Unlock()

	encrypted := s.writeAEAD.Seal(nil, seqNonce(seq), p, nil)

	length := uint32(len(encrypted))
	lenBuf := []byte{byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length)}

	if _, err := s.Conn.Write(lenBuf); err != nil {
		return 0, err
	}
	if _, err := s.Conn.Write(encrypted); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *secureConn) Read(p []byte) (int, error) {
	if len(s.readBuf) > 0 {
		n := copy(p, s.readBuf)
		s.readBuf = s.readBuf[n:]
		return n, nil
	}

	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(s.Conn, lenBuf); err != nil {
		return 0, err
	}
	length := uint32(lenBuf[0])<<24 | uint32(lenBuf[1])<<16 | uint32(lenBuf[2])<<8 | uint32(lenBuf[3])

	encrypted := make([]byte, length)
	if _, err := io.ReadFull(s.Conn, encrypted); err != nil {
		return 0, err
	}

	s.readMu.Lock()
	seq := s.readSeq
	s.readSeq++
	s.readMu.Unlock()

	decrypted, err := s.readAEAD.Open(nil, seqNonce(seq), encrypted, nil)
	if err != nil {
		return 0, fmt.Errorf("wsrelay: decrypt frame: %w", err)
	}

	n := copy(p, decrypted)
	if n < len(decrypted) {
		s.readBuf = decrypted[n:]
	}
	return n, nil
}

// directionalKeys derives a write key and a read key from an X25519
// shared secret, one labeled for each role, so the client's write key
// equals the server's read key and vice versa without either side
// needing to exchange anything beyond the public keys already sent.
func directionalKeys(shared []byte, isServer bool) (writeKey, readKey []byte) {
	toClient := sha256.Sum256(append(append([]byte{}, shared...), []byte("wsrelay:to-client")...))
	toServer := sha256.Sum256(append(append([]byte{}, shared...), []byte("wsrelay:to-server")...))
	if isServer {
		return toClient[:], toServer[:]
	}
	return toServer[:], toClient[:]
}

// negotiateE2EE performs an X25519 key exchange over conn and returns
// a net.Conn that transparently encrypts/decrypts with keys derived
// from the shared secret. isServer controls the order public keys are
// exchanged in and which directional key each side writes with.
func negotiateE2EE(conn net.Conn, isServer bool) (net.Conn, error) {
	var priv, pub [32]byte
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return nil, fmt.Errorf("wsrelay: generate key pair: %w", err)
	}
	curve25519.ScalarBaseMult(&pub, &priv)

	var remotePub [32]byte
	if isServer {
		if _, err := io.ReadFull(conn, remotePub[:]); err != nil {
			return nil, fmt.Errorf("wsrelay: read peer public key: %w", err)
		}
		if _, err := conn.Write(pub[:]); err != nil {
			return nil, fmt.Errorf("wsrelay: send public key: %w", err)
		}
	} else {
		if _, err := conn.Write(pub[:]); err != nil {
			return nil, fmt.Errorf("wsrelay: send public key: %w", err)
		}
		if _, err := io.ReadFull(conn, remotePub[:]); err != nil {
			return nil, fmt.Errorf("wsrelay: read peer public key: %w", err)
		}
	}

	shared, err := curve25519.X25519(priv[:], remotePub[:])
	if err != nil {
		return nil, fmt.Errorf("wsrelay: derive shared secret: %w", err)
	}

	writeKey, readKey := directionalKeys(shared, isServer)
	return newSecureConn(conn, writeKey, readKey)
}
