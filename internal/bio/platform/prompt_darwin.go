package platform

/*
#cgo CFLAGS: -x objective-c -fobjc-arc
#cgo LDFLAGS: -framework LocalAuthentication -framework Foundation -framework Security -framework CoreFoundation

#import <LocalAuthentication/LocalAuthentication.h>
#import <Foundation/Foundation.h>
#import <dispatch/dispatch.h>
#include <stdlib.h>

static int vaultlock_bio_can_evaluate(void) {
	@autoreleasepool {
		LAContext *context = [[LAContext alloc] init];
		if (!context) {
			return 0;
		}
		NSError *canError = nil;
		BOOL ok = [context canEvaluatePolicy:LAPolicyDeviceOwnerAuthenticationWithBiometrics error:&canError];
		[context invalidate];
		return ok ? 1 : 0;
	}
}

static int vaultlock_bio_prompt(const char *cReason) {
	@autoreleasepool {
		NSString *reason = cReason ? [[NSString alloc] initWithUTF8String:cReason] : @"Authenticate to continue";
		if (!reason) {
			reason = @"Authenticate to continue";
		}

		LAContext *context = [[LAContext alloc] init];
		if (!context) {
			return -100;
		}

		NSError *canError = nil;
		if (![context canEvaluatePolicy:LAPolicyDeviceOwnerAuthenticationWithBiometrics error:&canError]) {
			return canError ? (int)[canError code] : -101;
		}

		dispatch_semaphore_t sema = dispatch_semaphore_create(0);

		__block BOOL success = NO;
		__block NSError *evalError = nil;

		[context evaluatePolicy:LAPolicyDeviceOwnerAuthenticationWithBiometrics
		        localizedReason:reason
		                  reply:^(BOOL evaluated, NSError * _Nullable error) {
		                      success = evaluated;
		                      evalError = error;
		                      dispatch_semaphore_signal(sema);
		                  }];

		// The OS times the prompt out on its own; 60s bounds a stuck callback.
		dispatch_time_t timeout = dispatch_time(DISPATCH_TIME_NOW, (int64_t)(60 * NSEC_PER_SEC));
		long waitResult = dispatch_semaphore_wait(sema, timeout);
		[context invalidate];

		if (waitResult != 0) {
			return -103;
		}
		if (success) {
			return 0;
		}
		return evalError ? (int)[evalError code] : -104;
	}
}
*/
import "C"
import (
	"fmt"
	"strings"
	"unsafe"
)

const defaultReason = "Authenticate with Touch ID to unlock your vault"

// LAError codes for user, system and app cancellation.
const (
	laErrorUserCancel   = -2
	laErrorSystemCancel = -4
	laErrorAppCancel    = -9
)

func canEvaluate() bool {
	return C.vaultlock_bio_can_evaluate() == 1
}

func prompt(reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = defaultReason
	}
	cReason := C.CString(reason)
	defer C.free(unsafe.Pointer(cReason))

	code := int(C.vaultlock_bio_prompt(cReason))
	switch code {
	case 0:
		return nil
	case laErrorUserCancel, laErrorSystemCancel, laErrorAppCancel:
		return ErrCancelled
	default:
		return fmt.Errorf("biometric authentication failed (code %d)", code)
	}
}
