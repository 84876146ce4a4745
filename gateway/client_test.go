// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gateway_test

import (
	"bytes"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"testing"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/usbarmory/u5-secure-boot/gateway"
	"github.com/usbarmory/u5-secure-boot/mem"
)

func newClient(t *testing.T, g *gateway.Gateway) *gateway.Client {
	t.Helper()

	srv := rpc.NewServer()

	if err := srv.Register(&gateway.RPC{Gateway: g}); err != nil {
		t.Fatal(err)
	}

	s, c := net.Pipe()
	go srv.ServeCodec(jsonrpc.NewServerCodec(s))

	client := jsonrpc.NewClient(c)
	t.Cleanup(func() { client.Close() })

	return &gateway.Client{Call: client.Call}
}

func TestClient(t *testing.T) {
	g, _ := newGateway(t)
	pin := &gpiotest.Pin{N: "PC7", L: gpio.Low}
	g.Pin = pin

	c := newClient(t, g)

	if err := c.GPIOToggle(); err != nil {
		t.Fatalf("GPIOToggle(): %v", err)
	}

	if pin.Read() != gpio.High {
		t.Errorf("pin level not toggled")
	}

	if err := c.RegisterCallback(gateway.SecureFaultCallback); err != nil {
		t.Fatalf("RegisterCallback(): %v", err)
	}

	if err := c.RegisterCallback(gateway.SecureFaultCallback); err == nil {
		t.Errorf("second RegisterCallback() succeeded")
	}

	res := int32(gateway.OK)

	if err := c.Call("RPC.RegisterCallback", gateway.SecureFaultCallback, &res); err != nil || res != gateway.Error {
		t.Errorf("RPC.RegisterCallback = %d, %v, want %d", res, err, gateway.Error)
	}

	f := gateway.Fault{Source: gateway.SecureFaultCallback, Addr: 0x0c000000, Status: 0x48}

	if !g.Dispatch(f) {
		t.Fatalf("Dispatch() not handled")
	}

	faults, err := c.Faults()

	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]gateway.Fault{f}, faults); diff != "" {
		t.Errorf("Faults() diff (-want +got):\n%s", diff)
	}

	if faults, _ = c.Faults(); len(faults) != 0 {
		t.Errorf("Faults() not cleared: %v", faults)
	}
}

func TestClientFlash(t *testing.T) {
	g, _ := newGateway(t)
	c := newClient(t, g)

	addr := mem.FlashNS(mem.TFM.NSDataWindow.Start)
	data := bytes.Repeat([]byte{0xa5}, 32)

	if err := c.FlashProgramData(addr, data); err != nil {
		t.Fatalf("FlashProgramData(): %v", err)
	}

	if err := c.FlashProgramData(addr, data); err == nil {
		t.Errorf("FlashProgramData() over programmed data succeeded")
	}

	if err := c.FlashEraseSector(addr); err != nil {
		t.Fatalf("FlashEraseSector(): %v", err)
	}

	if err := c.FlashProgramData(addr, data); err != nil {
		t.Errorf("FlashProgramData() after erase: %v", err)
	}

	if err := c.FlashEraseSector(mem.FlashS(0)); err == nil {
		t.Errorf("FlashEraseSector() outside window succeeded")
	}

	if err := c.TriggerInstall(mem.SecureImage, 0); err == nil {
		t.Errorf("TriggerInstall() of empty image succeeded")
	}
}
