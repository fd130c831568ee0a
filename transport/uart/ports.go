// go-rcx
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-rcx.
//
// go-rcx is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-rcx is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-rcx; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package uart

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// LegoVendorID is the USB vendor ID of LEGO devices.
const LegoVendorID = "0694"

// PortInfo describes a serial port that may carry an IR tower.
type PortInfo struct {
	Path         string
	VIDPID       string
	Product      string
	SerialNumber string
	IsUSB        bool
	LikelyTower  bool
}

func (p PortInfo) String() string {
	var sb strings.Builder
	sb.WriteString(p.Path)
	if p.VIDPID != "" {
		_, _ = fmt.Fprintf(&sb, " [%s]", p.VIDPID)
	}
	if p.Product != "" {
		_, _ = fmt.Fprintf(&sb, " %s", p.Product)
	}
	if p.LikelyTower {
		sb.WriteString(" (likely IR tower)")
	}
	return sb.String()
}

// ListPorts enumerates the serial ports of the system with their USB
// details.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, portInfo(d))
	}
	return ports, nil
}

func portInfo(d *enumerator.PortDetails) PortInfo {
	p := PortInfo{
		Path:         d.Name,
		Product:      d.Product,
		SerialNumber: d.SerialNumber,
		IsUSB:        d.IsUSB,
	}
	if d.IsUSB && d.VID != "" {
		p.VIDPID = strings.ToUpper(d.VID + ":" + d.PID)
	}
	p.LikelyTower = isLikelyTower(p)
	return p
}

// isLikelyTower checks if a port is likely to lead to an IR tower: a LEGO
// device, or one of the USB serial bridges towers are commonly attached
// through.
func isLikelyTower(p PortInfo) bool {
	if strings.HasPrefix(p.VIDPID, LegoVendorID+":") {
		return true
	}

	knownBridges := []string{
		"067B:2303", // Prolific PL2303
		"0403:6001", // FTDI FT232
		"10C4:EA60", // Silicon Labs CP210x
		"1A86:7523", // QinHeng CH340
	}
	for _, known := range knownBridges {
		if p.VIDPID == known {
			return true
		}
	}

	lowerProduct := strings.ToLower(p.Product)
	for _, keyword := range []string{"lego", "mindstorms", "ir tower"} {
		if strings.Contains(lowerProduct, keyword) {
			return true
		}
	}
	return false
}
