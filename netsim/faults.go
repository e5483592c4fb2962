// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"fmt"

	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/errmodel"
	"github.com/rbmk-project/netscen/netsim/netdev"
)

// Faults contains the receive error models attached to a [*Topology].
type Faults struct {
	// Receiver is the model on the sink device.
	Receiver *errmodel.RateErrorModel

	// Inter contains the models on both ends of the inter-segment
	// link, empty in the point-to-point variants.
	Inter []*errmodel.RateErrorModel
}

// InjectFaults attaches a receiver error model to the sink device and,
// unless the sender is directly on the inter-segment link, one inter
// error model to each end of that link. Every model draws from its own
// named stream of the simulator.
func InjectFaults(sim *engine.Simulator, t *Topology, cfg *Config) *Faults {
	faults := &Faults{}
	_, sinkDev := t.SinkNode()
	faults.Receiver = attachErrorModel(sim, sinkDev, "errmodel/receiver", &cfg.Receiver)
	if cfg.Variant.Medium == MediumP2P {
		return faults
	}
	for idx, dev := range t.Inter.Devices {
		name := fmt.Sprintf("errmodel/inter/%d", idx)
		faults.Inter = append(faults.Inter, attachErrorModel(sim, dev, name, &cfg.Inter))
	}
	return faults
}

func attachErrorModel(sim *engine.Simulator, dev *netdev.Device, stream string, cfg *ErrorModelConfig) *errmodel.RateErrorModel {
	em := errmodel.NewRateErrorModel(cfg.Rate, cfg.Unit, cfg.RanVar, sim.Streams().Stream(stream))
	dev.SetReceiveErrorModel(em)
	return em
}
