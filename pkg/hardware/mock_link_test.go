package hardware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, link Link, want int) []byte {
	t.Helper()
	var got []byte
	buf := make([]byte, 64)
	deadline := time.Now().Add(time.Second)
	for len(got) < want && time.Now().Before(deadline) {
		n, err := link.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	return got
}

func TestMockLinkReadTimeout(t *testing.T) {
	link := NewMockLink(MockLinkConfig{ReadTimeout: 10 * time.Millisecond})
	defer link.Close()

	start := time.Now()
	n, err := link.Read(make([]byte, 8))
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestMockLinkInject(t *testing.T) {
	link := NewMockLink(MockLinkConfig{})
	defer link.Close()

	link.Inject([]byte{0x58, 0x00, 0x2A, 0x0D})
	assert.Equal(t, []byte{0x58, 0x00, 0x2A, 0x0D}, readAll(t, link, 4))
}

func TestMockLinkRecordsWrites(t *testing.T) {
	link := NewMockLink(MockLinkConfig{})
	defer link.Close()

	n, err := link.Write([]byte{0x47, 0x32, 0x0D})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = link.Write([]byte{0x4D, 0x30, 0x0D})
	require.NoError(t, err)

	assert.Equal(t, 2, link.WrittenCount())
	assert.Equal(t, [][]byte{{0x47, 0x32, 0x0D}, {0x4D, 0x30, 0x0D}}, link.Written())

	link.Reset()
	assert.Equal(t, 0, link.WrittenCount())
}

func TestMockLinkSimulation(t *testing.T) {
	link := NewMockLink(MockLinkConfig{Simulate: true, Strength: 0x0123, Firmware: "2.00"})
	defer link.Close()

	t.Run("PowerOnNotice", func(t *testing.T) {
		assert.Equal(t, []byte("DSP START\r\n"), readAll(t, link, 11))
	})

	t.Run("StrengthQuery", func(t *testing.T) {
		_, err := link.Write([]byte{0x58, 0x0D})
		require.NoError(t, err)
		assert.Equal(t, []byte{0x58, 0x01, 0x23, 0x0D}, readAll(t, link, 4))
	})

	t.Run("FirmwareQuery", func(t *testing.T) {
		_, err := link.Write([]byte{0x3F, 0x0D})
		require.NoError(t, err)
		assert.Equal(t, []byte("VER2.00\r"), readAll(t, link, 8))
	})

	t.Run("SetStrength", func(t *testing.T) {
		link.SetStrength(7)
		_, err := link.Write([]byte{0x58, 0x0D})
		require.NoError(t, err)
		assert.Equal(t, []byte{0x58, 0x00, 0x07, 0x0D}, readAll(t, link, 4))
	})
}

func TestMockLinkFailures(t *testing.T) {
	link := NewMockLink(MockLinkConfig{})
	defer link.Close()

	boom := errors.New("boom")
	link.FailWrites(boom)
	_, err := link.Write([]byte{0x58, 0x0D})
	assert.ErrorIs(t, err, boom)

	link.FailReads(boom)
	_, err = link.Read(make([]byte, 4))
	assert.ErrorIs(t, err, boom)
}

func TestMockLinkClose(t *testing.T) {
	link := NewMockLink(MockLinkConfig{ReadTimeout: time.Second})
	require.NoError(t, link.Close())
	require.NoError(t, link.Close())

	_, err := link.Read(make([]byte, 4))
	assert.ErrorIs(t, err, ErrLinkClosed)
	_, err = link.Write([]byte{0x0D})
	assert.ErrorIs(t, err, ErrLinkClosed)
}

func TestMockLinkWaitForWrites(t *testing.T) {
	link := NewMockLink(MockLinkConfig{})
	defer link.Close()

	assert.False(t, link.WaitForWrites(1, 20*time.Millisecond))

	go func() {
		time.Sleep(10 * time.Millisecond)
		link.Write([]byte{0x58, 0x0D})
	}()
	assert.True(t, link.WaitForWrites(1, time.Second))
}

func TestOpenLink(t *testing.T) {
	t.Run("Mock", func(t *testing.T) {
		link, err := OpenLink(LinkConfig{Mock: true, ReadTimeout: 10 * time.Millisecond})
		require.NoError(t, err)
		defer link.Close()
		_, ok := link.(*MockLink)
		assert.True(t, ok)
	})

	t.Run("MissingDevice", func(t *testing.T) {
		_, err := OpenLink(LinkConfig{})
		assert.Error(t, err)
	})

	t.Run("NonexistentDevice", func(t *testing.T) {
		_, err := OpenLink(LinkConfig{Device: "/dev/does-not-exist-rx320"})
		assert.Error(t, err)
	})
}
