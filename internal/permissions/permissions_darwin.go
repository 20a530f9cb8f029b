//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation -framework Cocoa
#import <AVFoundation/AVFoundation.h>
#import <Cocoa/Cocoa.h>

int checkMicrophonePermission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

void requestMicrophonePermission() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}

int checkCameraPermission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeVideo];
    return (int)status;
}

void requestCameraPermission() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeVideo completionHandler:^(BOOL granted) {}];
}
*/
import "C"

import "fmt"

const (
	PermissionNotDetermined = 0
	PermissionRestricted    = 1
	PermissionDenied        = 2
	PermissionAuthorized    = 3
)

// CheckMicrophone returns the current microphone permission status
func CheckMicrophone() int {
	return int(C.checkMicrophonePermission())
}

// CheckCamera returns the current camera permission status
func CheckCamera() int {
	return int(C.checkCameraPermission())
}

// EnsureCamera triggers the system dialog when access is undecided and
// fails until access is granted.
func EnsureCamera() error {
	switch CheckCamera() {
	case PermissionAuthorized:
		return nil
	case PermissionNotDetermined:
		C.requestCameraPermission()
	default:
		fmt.Println("⚠️  Camera permission required")
		fmt.Println("   Go to: System Settings → Privacy & Security → Camera")
	}
	return ErrCameraDenied
}

// EnsureMicrophone is EnsureCamera for the microphone.
func EnsureMicrophone() error {
	switch CheckMicrophone() {
	case PermissionAuthorized:
		return nil
	case PermissionNotDetermined:
		C.requestMicrophonePermission()
	default:
		fmt.Println("⚠️  Microphone permission required for voice commands")
		fmt.Println("   Go to: System Settings → Privacy & Security → Microphone")
	}
	return ErrMicrophoneDenied
}
