package simulation

import "snakeroyale/server/internal/match"

// Sink receives every outbound notification produced by the engine.
//
// Calls happen on the tick goroutine; implementations must not block.
type Sink interface {
	// OnJoined answers the join request identified by ref.
	OnJoined(ref, entityID string, snapshot Snapshot)
	OnStateSnapshot(snapshot Snapshot)
	OnRoundStarted(round int)
	// OnRoundEnded carries the winner, or nil when nobody survived.
	OnRoundEnded(round int, winner *EntityView)
	OnRoundRestarted(round int)
	OnRespawnResult(entityID string, result match.RespawnResult)
	// The remaining callbacks carry the round they happened in.
	OnEntityJoined(round int, entity EntityView)
	OnEntityLeft(round int, entityID string)
	OnEntityDied(death DeathEvent)
	OnEntityRespawned(round int, entity EntityView)
	OnKeynoteToggled(round int, enabled bool)
	OnPauseToggled(round int, enabled bool)
	OnPlayersCleared(round int)
}

// NopSink discards every notification.
type NopSink struct{}

func (NopSink) OnJoined(string, string, Snapshot) {}
func (NopSink) OnStateSnapshot(Snapshot) {}
func (NopSink) OnRoundStarted(int) {}
func (NopSink) OnRoundEnded(int, *EntityView) {}
func (NopSink) OnRoundRestarted(int) {}
func (NopSink) OnRespawnResult(string, match.RespawnResult) {}
func (NopSink) OnEntityJoined(int, EntityView) {}
func (NopSink) OnEntityLeft(int, string) {}
func (NopSink) OnEntityDied(DeathEvent) {}
func (NopSink) OnEntityRespawned(int, EntityView) {}
func (NopSink) OnKeynoteToggled(int, bool) {}
func (NopSink) OnPauseToggled(int, bool) {}
func (NopSink) OnPlayersCleared(int) {}
