// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gateway

// Entry point return codes
const (
	OK    = 0
	Error = -1
)

// Entry point names, as exported to the non-secure world.
const (
	SECURE_RegisterCallback   = "SECURE_RegisterCallback"
	SECURE_GPIO_Toggle        = "SECURE_GPIO_Toggle"
	SECURE_ConfirmSecureImage = "SECURE_ConfirmSecureImage"
	SECURE_TriggerInstall     = "SECURE_TriggerInstall"
	SECURE_Flash_ProgramData  = "SECURE_Flash_ProgramData"
	SECURE_Flash_EraseSector  = "SECURE_Flash_EraseSector"
)

// Result converts an entry point error to its return code.
func Result(err error) int32 {
	if err != nil {
		return Error
	}

	return OK
}
