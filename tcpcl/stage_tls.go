// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

// maybeUpgradeTLS is run as the ContactStage's PostHook. If both peers
// advertised ContactCanTls and a TLSConfig/UpgradeTLS pair is configured, it
// performs the in-band handshake and rewires the StageHandler onto the new
// tls.Conn's message channels before the SESS_INIT exchange begins.
func maybeUpgradeTLS(sh *StageHandler, state *State) error {
	if state.Configuration.TLSConfig == nil || state.Configuration.UpgradeTLS == nil {
		return nil
	}
	if state.Configuration.ContactFlags&ContactCanTls == 0 || state.PeerContactFlags&ContactCanTls == 0 {
		return nil
	}

	connState, newIn, newOut, err := state.Configuration.UpgradeTLS(state.Configuration.ActivePeer, state.Configuration.TLSConfig)
	if err != nil {
		return err
	}

	state.MsgIn = newIn
	state.MsgOut = newOut
	state.TLSConnState = connState
	state.TLSUpgraded = true

	return nil
}
