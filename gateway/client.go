// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gateway

import (
	"fmt"

	"github.com/usbarmory/u5-secure-boot/mem"
	"github.com/usbarmory/u5-secure-boot/util"
)

// Client represents the non-secure side of the RPC gateway.
type Client struct {
	// Call invokes a named RPC method, its signature matches
	// (*rpc.Client).Call.
	Call func(serviceMethod string, args interface{}, reply interface{}) error
}

func (c *Client) call(method string, args interface{}) (err error) {
	var res int32

	if err = c.Call("RPC."+method, args, &res); err != nil {
		return
	}

	if res != OK {
		return fmt.Errorf("%s returned %d", method, res)
	}

	return
}

// RegisterCallback enables fault notifications for a callback identifier.
func (c *Client) RegisterCallback(id int) error {
	return c.call("RegisterCallback", id)
}

// Faults returns the fault notifications queued since the last call.
func (c *Client) Faults() (faults []Fault, err error) {
	err = c.Call("RPC.Faults", true, &faults)
	return
}

// GPIOToggle toggles the secure-only GPIO.
func (c *Client) GPIOToggle() error {
	return c.call("GPIOToggle", true)
}

// ConfirmSecureImage confirms the running secure image.
func (c *Client) ConfirmSecureImage() error {
	return c.call("ConfirmSecureImage", true)
}

// TriggerInstall requests the installation of a received image.
func (c *Client) TriggerInstall(id mem.ImageID, size uint32) error {
	return c.call("TriggerInstall", util.InstallRequest{Image: int(id), Size: size})
}

// FlashProgramData programs the non-secure data window.
func (c *Client) FlashProgramData(addr uint32, data []byte) error {
	return c.call("FlashProgramData", util.FlashRequest{Addr: addr, Data: data})
}

// FlashEraseSector erases a sector of the non-secure data window.
func (c *Client) FlashEraseSector(addr uint32) error {
	return c.call("FlashEraseSector", addr)
}
