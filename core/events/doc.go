// Package events defines the typed live music event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - playback_state.*
//   - audio_level.*
//   - prompt.*
//   - error
//
// playback_state events
//
//   - PlaybackStateChanged (playback_state.changed): the helper moved to a new
//     PlaybackState. Emitted once per transition, in transition order.
//
// audio_level events
//
//   - AudioLevelChanged (audio_level.changed): frequency snapshot and RMS
//     level of the rendered output. Emitted on the output clock while
//     playing only.
//
// prompt events
//
//   - PromptFiltered (prompt.filtered): the generation backend refused one of
//     the weighted prompts. Playback carries on with the remaining prompts.
//
// error events
//
//   - Error (error): human readable failure. Connection and recording
//     failures force the helper back to stopped before this is delivered.
package events
