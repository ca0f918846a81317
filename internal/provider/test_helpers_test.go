package provider

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/hashicorp/terraform-plugin-testing/helper/resource"
	"github.com/hashicorp/terraform-plugin-testing/terraform"

	"github.com/isometry/terraform-provider-dirsrv/internal/idm"
	"github.com/isometry/terraform-provider-dirsrv/internal/ldap"
	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

// Test environment configuration constants.
const (
	EnvTestDomain   = "DIRSRV_TEST_DOMAIN"
	EnvTestLDAPURL  = "DIRSRV_TEST_LDAP_URL"
	EnvTestUsername = "DIRSRV_TEST_USERNAME"
	EnvTestPassword = "DIRSRV_TEST_PASSWORD"
	EnvTestBaseDN   = "DIRSRV_TEST_BASE_DN"
	EnvTestKeytab   = "DIRSRV_TEST_KEYTAB"
	EnvTestRealm    = "DIRSRV_TEST_REALM"

	DefaultTestBaseDN = "dc=example,dc=com"

	// Name prefixes keep test entries apart from real ones.
	TestServicePrefix = "tf-test-svc-"
	TestGroupPrefix   = "tf-test-group-"
	TestOUPrefix      = "tf-test-ou-"
)

// TestConfig holds common test configuration.
type TestConfig struct {
	Domain      string
	LDAPURL     string
	Username    string
	Password    string
	BaseDN      string
	Keytab      string
	Realm       string
	UseKerberos bool
}

// GetTestConfig returns the test configuration from environment variables.
func GetTestConfig() *TestConfig {
	config := &TestConfig{
		Domain:   os.Getenv(EnvTestDomain),
		LDAPURL:  os.Getenv(EnvTestLDAPURL),
		Username: os.Getenv(EnvTestUsername),
		Password: os.Getenv(EnvTestPassword),
		BaseDN:   getEnvWithDefault(EnvTestBaseDN, DefaultTestBaseDN),
		Keytab:   os.Getenv(EnvTestKeytab),
		Realm:    os.Getenv(EnvTestRealm),
	}
	config.UseKerberos = config.Keytab != "" && config.Realm != ""
	return config
}

// IsAccTest returns true if acceptance tests should run.
func IsAccTest() bool {
	return os.Getenv("TF_ACC") != ""
}

// SkipIfNotAccTest skips the test if TF_ACC is not set.
func SkipIfNotAccTest(t *testing.T) {
	if !IsAccTest() {
		t.Skip("Skipping acceptance test - set TF_ACC=1 to run")
	}
}

// testAccPreCheckWithConfig validates the acceptance test environment.
func testAccPreCheckWithConfig(t *testing.T) *TestConfig {
	SkipIfNotAccTest(t)

	config := GetTestConfig()

	if config.LDAPURL == "" && config.Domain == "" {
		t.Skipf("Skipping test: either %s or %s must point at a directory server", EnvTestLDAPURL, EnvTestDomain)
	}
	if config.Username == "" {
		t.Skipf("Skipping test: %s must be set", EnvTestUsername)
	}
	if config.Password == "" && !config.UseKerberos {
		t.Skipf("Skipping test: %s must be set (or configure Kerberos)", EnvTestPassword)
	}

	return config
}

// testAccProviderConfig generates the provider block for acceptance tests.
func testAccProviderConfig() string {
	config := GetTestConfig()

	var b strings.Builder
	b.WriteString("provider \"dirsrv\" {\n")
	if config.LDAPURL != "" {
		fmt.Fprintf(&b, "  ldap_url = %q\n", config.LDAPURL)
	} else {
		fmt.Fprintf(&b, "  domain = %q\n", config.Domain)
	}
	fmt.Fprintf(&b, "  base_dn  = %q\n", config.BaseDN)
	fmt.Fprintf(&b, "  username = %q\n", config.Username)
	if config.UseKerberos {
		fmt.Fprintf(&b, "  kerberos_realm  = %q\n", config.Realm)
		fmt.Fprintf(&b, "  kerberos_keytab = %q\n", config.Keytab)
	} else {
		fmt.Fprintf(&b, "  password = %q\n", config.Password)
	}
	b.WriteString("}\n")
	return b.String()
}

// GenerateTestName returns a unique entry name with the given prefix.
func GenerateTestName(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// testAccDial connects to the acceptance test directory server.
func testAccDial(ctx context.Context) (*ldap.Backend, error) {
	config := GetTestConfig()

	ldapConfig := ldap.DefaultConfig()
	ldapConfig.Domain = config.Domain
	if config.LDAPURL != "" {
		ldapConfig.LDAPURLs = []string{config.LDAPURL}
	}
	ldapConfig.BaseDN = config.BaseDN
	ldapConfig.Username = config.Username
	ldapConfig.Password = config.Password
	ldapConfig.KerberosKeytab = config.Keytab
	ldapConfig.KerberosRealm = config.Realm

	return ldap.Dial(ctx, ldapConfig)
}

// testAccObject opens the entry behind resourceName as typeName.
func testAccObject(ctx context.Context, s *terraform.State, resourceName, typeName string) (*mapping.Object, func(), error) {
	rs, ok := s.RootModule().Resources[resourceName]
	if !ok {
		return nil, nil, fmt.Errorf("resource not found: %s", resourceName)
	}
	if rs.Primary.ID == "" {
		return nil, nil, fmt.Errorf("resource ID not set")
	}

	typ, err := idm.NewRegistry().Lookup(typeName)
	if err != nil {
		return nil, nil, err
	}

	backend, err := testAccDial(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to directory server: %w", err)
	}

	obj, err := mapping.NewObject(backend, typ, rs.Primary.ID)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	return obj, func() { backend.Close() }, nil
}

// testAccCheckEntryExists verifies that the entry behind resourceName exists.
func testAccCheckEntryExists(resourceName, typeName string) resource.TestCheckFunc {
	return func(s *terraform.State) error {
		ctx := context.Background()

		obj, closeFn, err := testAccObject(ctx, s, resourceName, typeName)
		if err != nil {
			return err
		}
		defer closeFn()

		exists, err := obj.Exists(ctx)
		if err != nil {
			return fmt.Errorf("reading %s: %w", obj.DN(), err)
		}
		if !exists {
			return fmt.Errorf("%s %s does not exist", typeName, obj.DN())
		}
		return nil
	}
}

// testAccCheckEntryDisappears deletes the entry behind resourceName out of band.
func testAccCheckEntryDisappears(resourceName, typeName string) resource.TestCheckFunc {
	return func(s *terraform.State) error {
		ctx := context.Background()

		obj, closeFn, err := testAccObject(ctx, s, resourceName, typeName)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := obj.Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete %s: %w", obj.DN(), err)
		}
		return nil
	}
}

// testAccCheckEntryDestroy returns a CheckDestroy verifying that no
// resourceType instance is left in the directory.
func testAccCheckEntryDestroy(resourceType, typeName string) resource.TestCheckFunc {
	return func(s *terraform.State) error {
		ctx := context.Background()

		for name, rs := range s.RootModule().Resources {
			if rs.Type != resourceType {
				continue
			}

			obj, closeFn, err := testAccObject(ctx, s, name, typeName)
			if err != nil {
				return err
			}
			exists, err := obj.Exists(ctx)
			closeFn()
			if err != nil {
				return fmt.Errorf("reading %s: %w", obj.DN(), err)
			}
			if exists {
				return fmt.Errorf("%s %s still exists", typeName, obj.DN())
			}
		}
		return nil
	}
}
