package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/cradle5/cradlesync/internal/client/client"
	"github.com/cradle5/cradlesync/internal/common"
)

// Login prompts the user for credentials and tries to authenticate.
//
// The method first attempts an online login. If the server is unavailable
// (errors.Is(err, client.ErrUnavailable)), it falls back to offline login.
// On success it opens a session and updates the connectivity Mode:
//   - ModeOnline if online login succeeds,
//   - ModeOffline if offline login succeeds,
//   - ModeDisabled if both fail.
//
// The password is wiped before returning.
func (a *App) Login(ctx context.Context) error {
	if a.isLoggedIn() {
		a.endSession()
	}

	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	mode := ModeOnline
	masterKey, err := a.authService.OnlineLogin(ctx, userName, password)
	if errors.Is(err, client.ErrUnavailable) {
		fmt.Fprintln(a.out, "Server unavailable, trying offline login...")
		mode = ModeOffline
		masterKey, err = a.authService.OfflineLogin(ctx, userName, password)
	}
	if err != nil {
		if mode == ModeOffline {
			a.setMode(ModeDisabled)
		}
		return err
	}

	if err := a.openSession(ctx, masterKey); err != nil {
		common.WipeByteArray(masterKey)
		return err
	}
	a.masterKey = masterKey
	a.userName = userName
	a.setMode(mode)
	fmt.Fprintln(a.out, "Login successful")
	return nil
}

// Logout ends the session. Local records and offline login data stay on
// the device.
func (a *App) Logout(ctx context.Context) error {
	a.endSession()
	if err := a.authService.Close(ctx); err != nil {
		return err
	}
	a.setMode("")
	fmt.Fprintln(a.out, "Logged out")
	return nil
}
