package participant

import (
	"context"
	"time"

	"github.com/hdds-team/hdds-sub002/internal/config"
	"github.com/hdds-team/hdds-sub002/internal/congestion"
	"github.com/hdds-team/hdds-sub002/internal/discovery"
	"github.com/hdds-team/hdds-sub002/internal/reliability"
	"github.com/hdds-team/hdds-sub002/internal/rtps"
	"github.com/hdds-team/hdds-sub002/internal/transport"
	"github.com/hdds-team/hdds-sub002/pkg/log"
)

// noopSender is used when the bound transport does not implement
// discovery.Sender (the TCP/QUIC contract-only variants, spec §1/§9).
type noopSender struct{}

func (noopSender) MulticastSpdp(_ []byte) error          { return transport.ErrUnsupportedTransport }
func (noopSender) UnicastTo(_ string, _ []byte) error    { return transport.ErrUnsupportedTransport }

// bindTransport constructs the configured transport variant. UDP probes
// participant ids 0..MaxParticipantProbe when cfg.ParticipantID is nil
// (spec §6: "probe P = 0...255 and take the first one whose both
// unicast ports are bindable").
func (p *Participant) bindTransport() (transport.Transport, error) {
	switch p.cfg.Transport {
	case config.TransportIntraProcess:
		return nil, transport.ErrUnsupportedTransport
	case config.TransportTcp:
		return &transport.TcpTransport{Peers: p.cfg.StaticPeers}, nil
	case config.TransportQuic:
		return &transport.QuicTransport{Peers: p.cfg.StaticPeers}, nil
	default:
		return p.bindUdpWithProbe()
	}
}

func (p *Participant) bindUdpWithProbe() (*transport.UdpTransport, error) {
	if p.cfg.ParticipantID != nil {
		return transport.NewUdpTransport(transport.UdpTransportConfig{
			DomainID:      p.cfg.DomainID,
			ParticipantID: int(*p.cfg.ParticipantID),
		})
	}

	var lastErr error
	for id := 0; id <= MaxParticipantProbe; id++ {
		tr, err := transport.NewUdpTransport(transport.UdpTransportConfig{
			DomainID:      p.cfg.DomainID,
			ParticipantID: id,
		})
		if err == nil {
			log.Infof("participant: bound to participant id %d on domain %d", id, p.cfg.DomainID)
			return tr, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// spdpSender adapts the bound transport to discovery.Sender.
func (p *Participant) spdpSender() discovery.Sender {
	if sender, ok := p.tr.(discovery.Sender); ok {
		return sender
	}
	return noopSender{}
}

// startListener launches one goroutine that reads datagrams from sock,
// classifies them, and dispatches discovery/reliability/data packets to
// their handlers (spec §5 threads 1-4, the "demux router").
func (p *Participant) startListener(ctx context.Context, sock transport.Socket) {
	p.listenerWg.Add(1)
	go func() {
		defer p.listenerWg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			dg, err := p.tr.Recv(ctx, sock)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warnf("participant: recv failed: %v", err)
				continue
			}
			p.dispatch(dg)
		}
	}()
}

func (p *Participant) dispatch(dg transport.Datagram) {
	result := rtps.Classify(dg.Payload)
	switch result.Kind {
	case rtps.PacketKindSPDP:
		p.handleSpdpDatagram(dg, result)
	case rtps.PacketKindSEDP:
		p.handleSedpDatagram(dg, result)
	case rtps.PacketKindHeartbeat:
		if result.Heartbeat == nil {
			return
		}
		p.control.TryPush(reliability.ControlMessage{
			PeerPrefix: result.Context.SrcPrefix,
			Heartbeat: &reliability.Heartbeat{
				WriterGuid:     result.WriterGuid,
				First:          result.Heartbeat.First,
				Last:           result.Heartbeat.Last,
				Count:          result.Heartbeat.Count,
				FinalFlag:      result.Heartbeat.FinalFlag,
				LivelinessFlag: result.Heartbeat.LivelinessFlag,
			},
		})
	case rtps.PacketKindAckNack:
		if result.AckNack == nil {
			return
		}
		p.control.TryPush(reliability.ControlMessage{
			PeerPrefix: result.Context.SrcPrefix,
			AckNack: &reliability.AckNack{
				ReaderId:    result.ReaderGuid.Entity,
				WriterId:    result.WriterGuid.Entity,
				BitmapBase:  result.AckNack.BitmapBase,
				MissingSeqs: result.AckNack.Missing,
				Count:       result.AckNack.Count,
				FinalFlag:   result.AckNack.FinalFlag,
			},
		})
	case rtps.PacketKindNackFrag:
		if result.NackFrag == nil {
			return
		}
		p.control.TryPush(reliability.ControlMessage{
			PeerPrefix: result.Context.SrcPrefix,
			NackFrag: &reliability.NackFrag{
				ReaderId:        result.ReaderGuid.Entity,
				WriterId:        result.WriterGuid.Entity,
				Seq:             result.NackFrag.WriterSN,
				MissingFragNums: result.NackFrag.Missing,
				Count:           result.NackFrag.Count,
			},
		})
	case rtps.PacketKindData, rtps.PacketKindDataFrag:
		p.handleDataDatagram(dg, result)
	case rtps.PacketKindInvalid:
		log.Warnf("participant: dropped malformed datagram from %s", dg.Source.Addr)
	}
}

func (p *Participant) handleSpdpDatagram(dg transport.Datagram, result rtps.Result) {
	if result.PayloadOffset < 0 {
		return
	}
	ann, err := DecodeSpdp(dg.Payload[result.PayloadOffset:])
	if err != nil {
		log.Warnf("participant: failed to decode spdp announcement: %v", err)
		return
	}
	requireAuth := p.cfg.Security != nil && p.cfg.Security.RequireAuthentication
	if err := discovery.HandleIncomingSpdp(p.db, p.dialects, p.validator, requireAuth, ann, time.Now(), p.onPeerSeen); err != nil {
		log.Warnf("participant: rejected spdp announcement from %s: %v", dg.Source.Addr, err)
	}
}

func (p *Participant) handleSedpDatagram(dg transport.Datagram, result rtps.Result) {
	if result.PayloadOffset < 0 {
		return
	}
	data, locators, err := DecodeSedp(dg.Payload[result.PayloadOffset:])
	if err != nil {
		log.Warnf("participant: failed to decode sedp announcement: %v", err)
		return
	}
	data.Locators = locators

	switch data.Kind {
	case discovery.SedpPublication:
		p.mu.Lock()
		p.remoteWriters[data.EndpointGuid] = data
		p.mu.Unlock()
	case discovery.SedpSubscription:
		p.mu.Lock()
		p.remoteReaders[data.EndpointGuid] = data
		p.mu.Unlock()
	}

	// Writer QoS (and thus real priority) isn't known from SEDP alone;
	// every newly discovered topic/type pair gets a stream id at the
	// default priority. Resolve returns an existing id unchanged, so the
	// entry keeps the priority of whichever registration allocated it.
	if _, ok := p.streams.Resolve(data.TopicName, data.TypeName, int(congestion.P1), 0); !ok {
		log.Warnf("participant: stream-id space exhausted, topic %s/%s unmapped", data.TopicName, data.TypeName)
	}

	rules := p.dialects.RulesFor(data.EndpointGuid.Prefix)
	if rules.ExpectsFreshSeqReannounce {
		_, _, _ = discovery.ReannounceMatchingReaders(p.sedp, rules, data.TopicName, func(d discovery.SedpEndpointData) ([]byte, error) {
			return EncodeSedp(d, discovery.Locators{})
		})
	}
}

// handleDataDatagram demuxes a classified Data/DataFrag packet to every
// local reader registered on the writer's topic (spec §3 "Endpoint
// (Writer | Reader)", spec §2's incoming flow ending "... -> reader
// queues"), reassembling fragments before delivery.
func (p *Participant) handleDataDatagram(dg transport.Datagram, result rtps.Result) {
	if result.PayloadOffset < 0 {
		return
	}
	payload := dg.Payload[result.PayloadOffset : result.PayloadOffset+result.PayloadLen]

	for _, rs := range p.readersForWriter(result.WriterGuid) {
		if result.Kind == rtps.PacketKindDataFrag {
			rs.admitFragment(result.WriterGuid, result.Fragment, payload)
		} else {
			rs.admitData(result.WriterGuid, result.Seq, payload)
		}
	}

	if p.forwarder == nil || result.Kind == rtps.PacketKindDataFrag {
		return
	}
	// Forwarding a schemaless payload onto the bridge requires a type
	// descriptor for the sample's topic, supplied by the application;
	// without one the participant can only hand raw bytes onward, which
	// the bridge's Forwarder does not accept. Wiring a live descriptor
	// registry is the application's job (spec §9 "dynamic data model").
}

func (p *Participant) onPeerSeen(entry *discovery.PeerEntry) {
	log.Infof("participant: new peer %x at %v", entry.Prefix, entry.Locators.MetatrafficUnicast)
	if len(entry.Locators.MetatrafficUnicast) == 0 {
		return
	}
	addr := entry.Locators.MetatrafficUnicast[0]
	for _, kind := range []discovery.SedpEndpointKind{discovery.SedpPublication, discovery.SedpSubscription, discovery.SedpTopic} {
		for _, raw := range p.sedp.ReplayAll(kind) {
			if err := p.tr.SendToEndpoint(transport.Endpoint{Addr: addr}, raw); err != nil {
				log.Warnf("participant: replaying sedp announcement to %x: %v", entry.Prefix, err)
			}
		}
	}
}
