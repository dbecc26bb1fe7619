package viewer

import (
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// previewStats accumulates transport-quality counters from the capture
// peer's optional preview track. Written by the probe goroutines, read
// through PreviewStats from any goroutine, hence atomics rather than loop
// ownership.
type previewStats struct {
	packets      atomic.Uint64
	bytes        atomic.Uint64
	nacks        atomic.Uint64
	rttMicros    atomic.Int64
	fractionLost atomic.Uint32
}

// PreviewStats is the read-side snapshot of the preview probe.
type PreviewStats struct {
	Packets      uint64
	Bytes        uint64
	Nacks        uint64
	RTT          time.Duration
	FractionLost float64
}

func (p *previewStats) snapshot() PreviewStats {
	return PreviewStats{
		Packets:      p.packets.Load(),
		Bytes:        p.bytes.Load(),
		Nacks:        p.nacks.Load(),
		RTT:          time.Duration(p.rttMicros.Load()) * time.Microsecond,
		FractionLost: float64(p.fractionLost.Load()) / 255.0,
	}
}

// handlePreviewTrack attaches the probe to an inbound media track. The
// detection path runs entirely over data channels; a capture peer that also
// publishes its camera as a media track gets it drained here so the RTP
// session keeps flowing and its RTCP reports feed the quality counters.
func (o *Orchestrator) handlePreviewTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	o.logger.Infow("preview track attached",
		"room", o.cfg.Room,
		"track_id", track.ID(),
		"codec", track.Codec().MimeType,
	)

	go o.drainPreviewTrack(track)
	go o.readPreviewRTCP(receiver)
}

// drainPreviewTrack reads and discards preview RTP packets, keeping only
// the byte and packet tallies. Returns when the track ends.
func (o *Orchestrator) drainPreviewTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500) // MTU size
	pkt := &rtp.Packet{}

	for {
		n, _, err := track.Read(buf)
		if err != nil {
			o.logger.Debugw("preview track ended",
				"room", o.cfg.Room,
				"track_id", track.ID(),
				"error", err,
			)
			return
		}

		if err := pkt.Unmarshal(buf[:n]); err != nil {
			o.logger.Warnw("malformed preview RTP packet",
				"room", o.cfg.Room,
				"track_id", track.ID(),
				"error", err,
			)
			continue
		}

		o.preview.bytes.Add(uint64(n))
		count := o.preview.packets.Add(1)
		if count%500 == 0 {
			o.logger.Debugw("preview track stats",
				"room", o.cfg.Room,
				"packets", count,
				"sequence", pkt.SequenceNumber,
			)
		}
	}
}

// readPreviewRTCP consumes RTCP from the preview receiver and folds the
// quality fields into the probe counters. Returns when the receiver closes.
func (o *Orchestrator) readPreviewRTCP(receiver *webrtc.RTPReceiver) {
	for {
		packets, _, err := receiver.ReadRTCP()
		if err != nil {
			o.logger.Debugw("preview RTCP reader stopped", "room", o.cfg.Room, "error", err)
			return
		}

		for _, packet := range packets {
			switch p := packet.(type) {
			case *rtcp.ReceiverReport:
				for _, report := range p.Reports {
					o.preview.fractionLost.Store(uint32(report.FractionLost))
					if report.LastSenderReport != 0 && report.Delay != 0 {
						// DLSR is in 1/65536 second units.
						rtt := time.Duration(report.Delay) * time.Second / 65536
						o.preview.rttMicros.Store(rtt.Microseconds())
					}
				}

			case *rtcp.SenderReport:
				o.logger.Debugw("preview sender report",
					"room", o.cfg.Room,
					"packet_count", p.PacketCount,
					"octet_count", p.OctetCount,
				)

			case *rtcp.TransportLayerNack:
				o.preview.nacks.Add(uint64(len(p.Nacks)))

			case *rtcp.PictureLossIndication:
				// The viewer never decodes the preview, so a keyframe
				// request from our own stack carries no action here.
			}
		}
	}
}

// PreviewStats returns the probe counters accumulated so far.
func (o *Orchestrator) PreviewStats() PreviewStats {
	return o.preview.snapshot()
}
