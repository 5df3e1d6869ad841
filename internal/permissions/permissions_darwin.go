//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation
#import <AVFoundation/AVFoundation.h>

int checkMicrophonePermission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

void requestMicrophonePermission() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}
*/
import "C"

import "fmt"

// CheckMicrophone returns the current microphone authorization status.
func CheckMicrophone() Status {
	return Status(C.checkMicrophonePermission())
}

// RequestMicrophone triggers the system microphone permission dialog.
func RequestMicrophone() {
	C.requestMicrophonePermission()
}

// EnsurePermissions checks microphone access and asks for it when it has not
// been decided yet. Recording cannot start until it is granted.
func EnsurePermissions() error {
	switch status := CheckMicrophone(); status {
	case Authorized:
		return nil
	case NotDetermined:
		RequestMicrophone()
		return fmt.Errorf("%w: requested, restart after granting access", ErrMicrophone)
	default:
		return fmt.Errorf("%w: %s (System Settings > Privacy & Security > Microphone)", ErrMicrophone, status)
	}
}
