package transport_test

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/boltlabs-inc/zkchannels/escrow"
	"github.com/boltlabs-inc/zkchannels/transport"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

func newPipe(t *testing.T) (*transport.Chan, *transport.Chan) {
	t.Helper()
	a, b := net.Pipe()
	key, err := transport.NewSessionKey()
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return transport.NewChan(a, key), transport.NewChan(b, key)
}

func TestWriteReadMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := &transport.PayRequest{Amount: 42, Note: "coffee"}
	require.NoError(t, transport.WriteMessage(&buf, want))

	got, err := transport.ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, transport.MsgPayRequest, got.MsgType())
	require.Equal(t, want, got)
}

func TestReadMessageRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, transport.WriteMessage(&buf, &transport.PayRequest{Amount: 1}))
	raw := buf.Bytes()
	raw[0] = 0xff // corrupt the declared length to exceed MaxMessagePayload
	_, err := transport.ReadMessage(bytes.NewReader(raw))
	require.Error(t, err)
}

func TestChanSendRecvOverPipe(t *testing.T) {
	client, server := newPipe(t)

	sent := &transport.PayRequest{Amount: 100, Note: "lunch"}
	errCh := make(chan error, 1)
	go func() { errCh <- client.Send(sent) }()

	var received transport.PayRequest
	require.NoError(t, server.Recv(&received))
	require.NoError(t, <-errCh)
	require.Equal(t, *sent, received)
}

func TestChanRecvRejectsWrongType(t *testing.T) {
	client, server := newPipe(t)

	go func() { _ = client.Send(&transport.PayRequest{Amount: 1}) }()

	var wrong transport.StartMessageMsg
	err := server.Recv(&wrong)
	require.ErrorIs(t, err, transport.ErrUnexpectedMessage)
}

func TestChanChooseOfferChoice(t *testing.T) {
	client, server := newPipe(t)

	go func() { _ = client.Choose(transport.ChoiceEstablish) }()

	choice, ok, err := server.OfferChoice()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, transport.ChoiceEstablish, choice)
}

func TestChanOfferChoiceSeesAbort(t *testing.T) {
	client, server := newPipe(t)

	go func() { _ = client.Abort(7, "customer declined") }()

	_, ok, err := server.OfferChoice()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestChanRecvContinueOrAbort(t *testing.T) {
	client, server := newPipe(t)
	go func() { _ = client.SendContinue() }()
	ok, _, _, err := server.RecvContinueOrAbort()
	require.NoError(t, err)
	require.True(t, ok)

	client2, server2 := newPipe(t)
	go func() { _ = client2.Abort(3, "insufficient funds") }()
	ok, kind, reason, err := server2.RecvContinueOrAbort()
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, uint8(3), kind)
	require.Equal(t, transport.AbortReason("insufficient funds"), reason)
}

func TestChanRecvOrAbort(t *testing.T) {
	client, server := newPipe(t)
	go func() {
		_ = client.Send(&transport.ClosingSignatureMsg{Signature: zkabacus.ClosingSignature{Bytes: []byte("sig")}})
	}()

	var got transport.ClosingSignatureMsg
	ok, _, _, err := server.RecvOrAbort(&got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("sig"), got.Signature.Bytes)
}

func TestChanSendAfterCloseFails(t *testing.T) {
	client, _ := newPipe(t)
	require.NoError(t, client.Close())
	err := client.Send(&transport.PayRequest{Amount: 1})
	require.Error(t, err)
}

func TestParametersMsgRoundTripsEscrowTypes(t *testing.T) {
	var buf bytes.Buffer
	keyHash := escrow.NewKeyHash([]byte("zkpub"), "tz1Merchant", escrow.TezosPublicKey("tezospub"))
	want := &transport.ParametersMsg{
		ZkAbacusPublicKey: []byte("zkpub"),
		TezosPublicKey:    escrow.TezosPublicKey("tezospub"),
		KeyHash:           keyHash,
	}
	require.NoError(t, transport.WriteMessage(&buf, want))

	got, err := transport.ReadMessage(&buf)
	require.NoError(t, err)
	params, ok := got.(*transport.ParametersMsg)
	require.True(t, ok)
	require.Equal(t, want.ZkAbacusPublicKey, params.ZkAbacusPublicKey)
	require.Equal(t, want.TezosPublicKey, params.TezosPublicKey)
	require.Equal(t, want.KeyHash, params.KeyHash)
}
