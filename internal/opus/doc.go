// Package opus handles demuxing and streaming of Opus audio for Discord
// voice playback.
//
// TTS providers and stored sfx clips deliver OGG/Opus streams. PacketReader
// pulls raw Opus packets out of the OGG container; Stream pushes them into a
// playback sink one frame at a time. Encode transcodes arbitrary uploaded
// audio into OGG/Opus via FFmpeg for storage.
package opus
