// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gateway

import (
	"log"
	"sync"

	"github.com/usbarmory/u5-secure-boot/mem"
	"github.com/usbarmory/u5-secure-boot/util"
)

// maximum number of queued fault notifications
const faultQueueSize = 16

// RPC represents the gateway receiver for non-secure world RPC over system
// calls. Each method stores the entry point return code in its output and
// returns no error, as net/rpc discards the reply of a failed call.
//
// Fault callbacks cannot cross the world boundary, registered callbacks
// queue notifications which the non-secure world collects with Faults.
type RPC struct {
	Gateway *Gateway

	mu     sync.Mutex
	faults []Fault
}

func result(method string, err error) int32 {
	if err != nil {
		log.Printf("gateway %s failed, %v", method, err)
	}

	return Result(err)
}

func (r *RPC) queue(f Fault) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.faults) == faultQueueSize {
		r.faults = r.faults[1:]
	}

	r.faults = append(r.faults, f)
}

// RegisterCallback enables fault notifications for a callback identifier.
func (r *RPC) RegisterCallback(id int, res *int32) error {
	*res = result("RegisterCallback", r.Gateway.RegisterCallback(id, r.queue))
	return nil
}

// Faults returns and clears the queued fault notifications.
func (r *RPC) Faults(_ bool, out *[]Fault) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	*out = r.faults
	r.faults = nil

	return nil
}

// GPIOToggle toggles the secure-only GPIO.
func (r *RPC) GPIOToggle(_ bool, res *int32) error {
	*res = result("GPIOToggle", r.Gateway.GPIOToggle())
	return nil
}

// ConfirmSecureImage confirms the running secure image.
func (r *RPC) ConfirmSecureImage(_ bool, res *int32) error {
	*res = result("ConfirmSecureImage", r.Gateway.ConfirmSecureImage())
	return nil
}

// TriggerInstall requests the installation of a received image.
func (r *RPC) TriggerInstall(req util.InstallRequest, res *int32) error {
	*res = result("TriggerInstall", r.Gateway.TriggerInstall(mem.ImageID(req.Image), req.Size))
	return nil
}

// FlashProgramData programs the non-secure data window.
func (r *RPC) FlashProgramData(req util.FlashRequest, res *int32) error {
	*res = result("FlashProgramData", r.Gateway.FlashProgramData(req.Addr, req.Data))
	return nil
}

// FlashEraseSector erases a sector of the non-secure data window.
func (r *RPC) FlashEraseSector(addr uint32, res *int32) error {
	*res = result("FlashEraseSector", r.Gateway.FlashEraseSector(addr))
	return nil
}
