package config

import "errors"

var (
	// ErrServerPortCanNotBeZero is returned if server.port is 0.
	ErrServerPortCanNotBeZero = errors.New("config server.port can not be 0")

	// ErrUnknownDBDriver is returned for a db.driver other than postgres, mysql or sqlite.
	ErrUnknownDBDriver = errors.New("config db.driver must be postgres, mysql or sqlite")

	// ErrJWTSecretRequired is returned in release mode without jwt.secret.
	ErrJWTSecretRequired = errors.New("config jwt.secret is required in release mode")

	// ErrUnknownStorageBackend is returned for a storage.backend other than local or s3.
	ErrUnknownStorageBackend = errors.New("config storage.backend must be local or s3")

	// ErrS3BucketRequired is returned when the s3 backend has no bucket.
	ErrS3BucketRequired = errors.New("config storage.s3.bucket is required for the s3 backend")

	// ErrUnknownOTPStore is returned for an otp.store other than memory or redis.
	ErrUnknownOTPStore = errors.New("config otp.store must be memory or redis")

	// ErrRedisURLRequired is returned when the redis OTP store has no URL.
	ErrRedisURLRequired = errors.New("config otp.redis_url is required for the redis store")
)
