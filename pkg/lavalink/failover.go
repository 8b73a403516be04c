package lavalink

// ChangeNode moves the player to node and rebuilds its remote state there
// from local knowledge only: voice session, current track at the current
// position, pause, volume and equalizer. Settings still at their defaults are
// not resent. The old node gets a best-effort destroy if it is reachable.
func (p *Player) ChangeNode(node *Node) {
	if node == nil {
		return
	}

	p.mu.Lock()
	old := p.node
	if old == node {
		p.mu.Unlock()
		return
	}

	if old != nil && old.Available() {
		if err := old.Send(guildMessage{Op: opDestroy, GuildID: p.guildID}); err != nil {
			p.log.Debug().Err(err).Msg("Destroy on old node failed")
		}
	}

	p.node = node

	if !p.voice.empty() {
		p.sendVoiceUpdateLocked()
	}

	if p.current != nil {
		position := p.positionLocked()
		_ = p.sendLocked(playMessage{
			Op:        opPlay,
			GuildID:   p.guildID,
			Track:     p.current.Encoded,
			StartTime: position,
		})
		p.lastPosition = position
		p.lastUpdate = p.clock()

		if p.paused {
			_ = p.sendLocked(pauseMessage{Op: opPause, GuildID: p.guildID, Pause: true})
		}
	}

	if p.volume != DefaultVolume {
		_ = p.sendLocked(volumeMessage{Op: opVolume, GuildID: p.guildID, Volume: p.volume})
	}

	if p.equalizer != ([EqualizerBands]float64{}) {
		bands := make([]Band, EqualizerBands)
		for i, g := range p.equalizer {
			bands[i] = Band{Band: i, Gain: g}
		}
		_ = p.sendLocked(equalizerMessage{Op: opEqualizer, GuildID: p.guildID, Bands: bands})
	}
	p.mu.Unlock()

	p.log.Info().Str("from", nodeName(old)).Str("to", node.Name()).Msg("Player moved to another node")
	p.dispatch(NodeChangedEvent{Player: p, Old: old, New: node})
}

func nodeName(n *Node) string {
	if n == nil {
		return ""
	}
	return n.Name()
}
