package simcrypto

import (
	"github.com/boltlabs-inc/zkchannels/merchant"
)

// NewMerchantCrypto builds the three merchant-side backends, sharing one
// Tracker between Establish and Pay, as a merchant.Crypto ready to hand to
// merchant.NewDispatcher.
func NewMerchantCrypto(key SharedKey) merchant.Crypto {
	tracker := NewTracker()
	return merchant.Crypto{
		Establish: EstablishMerchantCrypto{Key: key, Tracker: tracker},
		Pay:       PayMerchantCrypto{Key: key, Tracker: tracker},
		Close:     CloseMerchantCrypto{Key: key},
	}
}

// CustomerCrypto bundles the customer-side backends for Establish and Pay,
// the two sub-protocols that take a crypto argument on the customer side.
type CustomerCrypto struct {
	Establish EstablishCustomerCrypto
	Pay       PayCustomerCrypto
}

// NewCustomerCrypto builds the customer-side backends under key.
func NewCustomerCrypto(key SharedKey) CustomerCrypto {
	return CustomerCrypto{
		Establish: EstablishCustomerCrypto{Key: key},
		Pay:       PayCustomerCrypto{Key: key},
	}
}
