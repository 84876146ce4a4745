// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package emulator

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/perlin-network/life/exec"
	wasm_validation "github.com/perlin-network/life/wasm-validation"

	"github.com/usbarmory/u5-secure-boot/gateway"
	"github.com/usbarmory/u5-secure-boot/mem"
	"github.com/usbarmory/u5-secure-boot/util"
)

// Non-secure application exports
const (
	EntryPoint = "main"

	SecureFaultExport = "SecureFault_Callback"
	GTZCErrorExport   = "GTZC_Error_Callback"
)

// Non-secure application imports, besides the gateway entry points.
const (
	NS_Read32  = "NS_Read32"
	NS_Write32 = "NS_Write32"
	NS_Print   = "print"
)

var callbackExports = [...]string{
	gateway.SecureFaultCallback: SecureFaultExport,
	gateway.GTZCErrorCallback:   GTZCErrorExport,
}

// NonSecure represents a non-secure application instance, executed as a
// WebAssembly module with the gateway entry points as imports.
//
// Fault callbacks are queued while the application runs and delivered, by
// invoking the exported callback functions, once the running entry point
// returns.
type NonSecure struct {
	sync.Mutex

	dev *Device
	vm  *exec.VirtualMachine
	out io.Writer

	pending []gateway.Fault
}

// NewNonSecure instantiates a non-secure application.
func NewNonSecure(dev *Device, code []byte) (w *NonSecure, err error) {
	if err = wasm_validation.ValidateWasm(code); err != nil {
		return nil, fmt.Errorf("invalid non-secure application, %v", err)
	}

	w = &NonSecure{
		dev: dev,
		out: dev.Output,
	}

	if w.out == nil {
		w.out = util.WorldWriter(false, nil)
	}

	// unresolved imports panic
	defer func() {
		if r := recover(); r != nil {
			w = nil
			err = fmt.Errorf("invalid non-secure application, %v", r)
		}
	}()

	w.vm, err = exec.NewVirtualMachine(code, exec.VMConfig{
		DefaultMemoryPages: 128,
		DefaultTableSize:   65536,
	}, w, nil)

	if err != nil {
		return nil, err
	}

	return
}

func (w *NonSecure) run(name string, params ...int64) (ret int64, err error) {
	id, ok := w.vm.GetFunctionExport(name)

	if !ok {
		return 0, fmt.Errorf("missing %s export", name)
	}

	if ret, err = w.vm.Run(id, params...); err != nil {
		w.vm.PrintStackTrace()
	}

	return
}

// Run executes the application entry point and delivers the callbacks of
// the faults it raised.
func (w *NonSecure) Run() (err error) {
	if w.vm.Module.Base.Start != nil {
		if _, err = w.vm.Run(int(w.vm.Module.Base.Start.Index)); err != nil {
			return
		}
	}

	ret, err := w.run(EntryPoint)

	if err != nil {
		return fmt.Errorf("non-secure application error, %v", err)
	}

	log.Printf("SM non-secure application returned %d", ret)

	return w.Deliver()
}

// Deliver runs the callbacks of the pending faults.
func (w *NonSecure) Deliver() (err error) {
	w.Lock()
	pending := w.pending
	w.pending = nil
	w.Unlock()

	for _, f := range pending {
		if _, err = w.run(callbackExports[f.Source], int64(f.Addr), int64(f.Status)); err != nil {
			return fmt.Errorf("non-secure callback error, %v", err)
		}
	}

	return
}

func (w *NonSecure) queue(f gateway.Fault) {
	w.Lock()
	defer w.Unlock()

	w.pending = append(w.pending, f)
}

// Pending returns the undelivered faults.
func (w *NonSecure) Pending() []gateway.Fault {
	w.Lock()
	defer w.Unlock()

	return append([]gateway.Fault(nil), w.pending...)
}

func arg(vm *exec.VirtualMachine, i int) uint32 {
	return uint32(vm.GetCurrentFrame().Locals[i])
}

func result(err error) int64 {
	if err != nil {
		log.Printf("SM non-secure call failed, %v", err)
	}

	return int64(gateway.Result(err))
}

func (w *NonSecure) memory(vm *exec.VirtualMachine, ptr uint32, size uint32) ([]byte, error) {
	if uint64(ptr)+uint64(size) > uint64(len(vm.Memory)) {
		return nil, fmt.Errorf("%w: invalid buffer", gateway.ErrInvalidParameter)
	}

	return vm.Memory[ptr : ptr+size], nil
}

// access checks a non-secure world data access, raising a SecureFault on
// secure addresses.
func (w *NonSecure) access(addr uint32, write bool) error {
	a := w.dev.Platform.Probe(addr)

	if (write && a.NS.Write) || (!write && a.NS.Read) {
		return nil
	}

	if a.Secure && !a.NSC {
		if err := w.dev.SecureFault(addr); err != nil {
			// the device has been reset
			panic(err)
		}
	}

	return fmt.Errorf("access violation at %#.8x (%s)", addr, a)
}

func (w *NonSecure) registerCallback(vm *exec.VirtualMachine) int64 {
	id := int(int32(arg(vm, 0)))

	if id < 0 || id >= len(callbackExports) {
		return result(gateway.ErrInvalidParameter)
	}

	if _, ok := vm.GetFunctionExport(callbackExports[id]); !ok {
		return result(fmt.Errorf("%w: missing %s export", gateway.ErrInvalidParameter, callbackExports[id]))
	}

	return result(w.dev.Platform.Gateway.RegisterCallback(id, w.queue))
}

// ResolveFunc implements exec.ImportResolver.
func (w *NonSecure) ResolveFunc(module, field string) exec.FunctionImport {
	if module != "env" {
		panic(fmt.Errorf("unknown module: %s", module))
	}

	gw := func() *gateway.Gateway {
		return w.dev.Platform.Gateway
	}

	switch field {
	case gateway.SECURE_RegisterCallback:
		return w.registerCallback
	case gateway.SECURE_GPIO_Toggle:
		return func(vm *exec.VirtualMachine) int64 {
			return result(gw().GPIOToggle())
		}
	case gateway.SECURE_ConfirmSecureImage:
		return func(vm *exec.VirtualMachine) int64 {
			return result(gw().ConfirmSecureImage())
		}
	case gateway.SECURE_TriggerInstall:
		return func(vm *exec.VirtualMachine) int64 {
			return result(gw().TriggerInstall(mem.ImageID(arg(vm, 0)), arg(vm, 1)))
		}
	case gateway.SECURE_Flash_ProgramData:
		return func(vm *exec.VirtualMachine) int64 {
			data, err := w.memory(vm, arg(vm, 1), arg(vm, 2))

			if err != nil {
				return result(err)
			}

			return result(gw().FlashProgramData(arg(vm, 0), data))
		}
	case gateway.SECURE_Flash_EraseSector:
		return func(vm *exec.VirtualMachine) int64 {
			return result(gw().FlashEraseSector(arg(vm, 0)))
		}
	case NS_Read32:
		return func(vm *exec.VirtualMachine) int64 {
			addr := arg(vm, 0)

			if err := w.access(addr, false); err != nil {
				log.Printf("SM %v", err)
				return -1
			}

			return int64(w.dev.Sim.Read32(addr))
		}
	case NS_Write32:
		return func(vm *exec.VirtualMachine) int64 {
			addr := arg(vm, 0)

			if err := w.access(addr, true); err != nil {
				return result(err)
			}

			w.dev.Sim.Write32(addr, arg(vm, 1))

			return gateway.OK
		}
	case NS_Print:
		return func(vm *exec.VirtualMachine) int64 {
			buf, err := w.memory(vm, arg(vm, 0), arg(vm, 1))

			if err != nil {
				return result(err)
			}

			_, _ = w.out.Write(buf)

			return gateway.OK
		}
	}

	panic(fmt.Errorf("unknown field: %s", field))
}

// ResolveGlobal implements exec.ImportResolver.
func (w *NonSecure) ResolveGlobal(module, field string) int64 {
	panic(errors.New("no global imports"))
}
