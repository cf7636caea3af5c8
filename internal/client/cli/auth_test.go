package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/cradle5/cradlesync/internal/client/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubInputs(t *testing.T, username string, password []byte) {
	t.Helper()
	origST, origGP := getSimpleText, getPassword
	getSimpleText = func(_ *bufio.Reader, _ string, _ io.Writer) (string, error) { return username, nil }
	getPassword = func(_ io.Writer) ([]byte, error) { return append([]byte(nil), password...), nil }
	t.Cleanup(func() {
		getSimpleText = origST
		getPassword = origGP
	})
}

type fakeAuth struct {
	onlineUser string
	onlinePass []byte
	onlineMK   []byte
	onlineErr  error

	offlineUser string
	offlineMK   []byte
	offlineErr  error

	closed  bool
	pingErr error
}

func (f *fakeAuth) OnlineLogin(_ context.Context, user string, pass []byte) ([]byte, error) {
	f.onlineUser, f.onlinePass = user, append([]byte(nil), pass...)
	return f.onlineMK, f.onlineErr
}

func (f *fakeAuth) OfflineLogin(_ context.Context, user string, pass []byte) ([]byte, error) {
	f.offlineUser = user
	return f.offlineMK, f.offlineErr
}

func (f *fakeAuth) Ping(context.Context) error { return f.pingErr }

func (f *fakeAuth) Close(context.Context) error {
	f.closed = true
	return nil
}

func newAuthApp(fa *fakeAuth) (*App, *bytes.Buffer, *[][]byte) {
	var out bytes.Buffer
	var sessions [][]byte
	a := &App{authService: fa, out: &out}
	a.openSession = func(_ context.Context, key []byte) error {
		sessions = append(sessions, append([]byte(nil), key...))
		return nil
	}
	return a, &out, &sessions
}

func TestLogin_Online(t *testing.T) {
	stubInputs(t, "nurse1", []byte("pw"))
	fa := &fakeAuth{onlineMK: []byte("mk-online")}
	a, out, sessions := newAuthApp(fa)

	require.NoError(t, a.Login(context.Background()))

	assert.Equal(t, "nurse1", fa.onlineUser)
	assert.Equal(t, []byte("pw"), fa.onlinePass)
	assert.True(t, a.isLoggedIn())
	assert.Equal(t, ModeOnline, a.Mode())
	assert.Equal(t, [][]byte{[]byte("mk-online")}, *sessions)
	assert.Equal(t, "(nurse1 online)", a.getStatus())
	assert.Contains(t, out.String(), "Login successful")
}

func TestLogin_FallsBackToOffline(t *testing.T) {
	stubInputs(t, "nurse1", []byte("pw"))
	fa := &fakeAuth{onlineErr: client.ErrUnavailable, offlineMK: []byte("mk-offline")}
	a, out, _ := newAuthApp(fa)

	require.NoError(t, a.Login(context.Background()))

	assert.Equal(t, "nurse1", fa.offlineUser)
	assert.Equal(t, []byte("mk-offline"), a.masterKey)
	assert.Equal(t, ModeOffline, a.Mode())
	assert.Contains(t, out.String(), "trying offline login")
}

func TestLogin_OfflineFailureDisables(t *testing.T) {
	stubInputs(t, "nurse1", []byte("pw"))
	fa := &fakeAuth{onlineErr: client.ErrUnavailable, offlineErr: client.ErrLocalDataNotAvailable}
	a, _, sessions := newAuthApp(fa)

	err := a.Login(context.Background())
	require.ErrorIs(t, err, client.ErrLocalDataNotAvailable)
	assert.False(t, a.isLoggedIn())
	assert.Equal(t, ModeDisabled, a.Mode())
	assert.Empty(t, *sessions)
}

func TestLogin_RejectedOnline(t *testing.T) {
	stubInputs(t, "nurse1", []byte("bad"))
	fa := &fakeAuth{onlineErr: client.ErrUnauthorized}
	a, _, _ := newAuthApp(fa)

	err := a.Login(context.Background())
	require.ErrorIs(t, err, client.ErrUnauthorized)
	assert.False(t, a.isLoggedIn())
	assert.Empty(t, fa.offlineUser, "offline login must not be tried")
}

func TestLogin_SessionError(t *testing.T) {
	stubInputs(t, "nurse1", []byte("pw"))
	a, _, _ := newAuthApp(&fakeAuth{onlineMK: []byte("k")})
	a.openSession = func(context.Context, []byte) error { return errors.New("bad key") }

	require.Error(t, a.Login(context.Background()))
	assert.False(t, a.isLoggedIn())
}

func TestLogout(t *testing.T) {
	stubInputs(t, "nurse1", []byte("pw"))
	fa := &fakeAuth{onlineMK: []byte("mk")}
	a, out, _ := newAuthApp(fa)
	require.NoError(t, a.Login(context.Background()))

	stopped := false
	a.stopWorker = func() { stopped = true }

	require.NoError(t, a.Logout(context.Background()))
	assert.False(t, a.isLoggedIn())
	assert.True(t, stopped)
	assert.True(t, fa.closed)
	assert.Empty(t, a.userName)
	assert.Contains(t, out.String(), "Logged out")
}
