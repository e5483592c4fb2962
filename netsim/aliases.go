//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Aliases
//

package netsim

import (
	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/errmodel"
	"github.com/rbmk-project/netscen/netsim/netdev"
	"github.com/rbmk-project/netscen/netsim/netstack"
)

// Stack is an alias for [netstack.Stack].
type Stack = netstack.Stack

// DataRate is an alias for [netdev.DataRate].
type DataRate = netdev.DataRate

// Delay is an alias for [netdev.Delay].
type Delay = netdev.Delay

// Uniform is an alias for [engine.Uniform].
type Uniform = engine.Uniform

// Unit is an alias for [errmodel.Unit].
type Unit = errmodel.Unit

// ParseDataRate is an alias for [netdev.ParseDataRate].
var ParseDataRate = netdev.ParseDataRate

// ParseDelay is an alias for [netdev.ParseDelay].
var ParseDelay = netdev.ParseDelay

// ParseUnit is an alias for [errmodel.ParseUnit].
var ParseUnit = errmodel.ParseUnit
